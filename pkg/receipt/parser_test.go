package receipt_test

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirhub/verify-backend/pkg/receipt"
	"github.com/edirhub/verify-backend/pkg/receipt/receipttest"
)

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	os.Exit(m.Run())
}

func TestParseText_Complete(t *testing.T) {
	p := receipt.NewParser()
	f := p.ParseText(receipttest.Default().Text())

	require.True(t, f.Complete(), "missing: %v", f.Missing)
	assert.Equal(t, "Abebe Kebede Tesfaye", f.Payer)
	assert.Equal(t, "1****1234", f.PayerAccount)
	assert.Equal(t, "Edir Savings Association", f.Receiver)
	assert.Equal(t, "1****5678", f.ReceiverAccount)
	assert.Equal(t, "FT24075ABCD1", f.Reference)
	assert.Equal(t, "monthly contribution", f.Reason)
	require.True(t, f.Amount.Valid)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(f.Amount.Decimal))
	require.NotNil(t, f.Date)
	assert.True(t, time.Date(2024, 3, 15, 14, 30, 45, 0, receipt.EastAfricaTime).Equal(*f.Date))
	assert.Empty(t, f.Missing)
	assert.Empty(t, f.Error)
	assert.False(t, f.Critical)
}

func TestParseText_NormalizesWhitespaceAndCase(t *testing.T) {
	text := "Payer :   abebe\n\tKEBEDE   Account : A****1234\n" +
		"receiver: edir   savings Account B****5678 " +
		"payment date & time 3/15/2024,   2:30:45 pm " +
		"REFERENCE NO (vat invoice no): FT1 " +
		"transferred amount 10.00 etb"
	f := receipt.NewParser().ParseText(text)

	require.True(t, f.Complete(), "missing: %v", f.Missing)
	assert.Equal(t, "Abebe Kebede", f.Payer)
	assert.Equal(t, "A****1234", f.PayerAccount)
	assert.Equal(t, "Edir Savings", f.Receiver)
	assert.Equal(t, "B****5678", f.ReceiverAccount)
	assert.Equal(t, "FT1", f.Reference)
}

func TestParseText_FieldsAreIndependent(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(r *receipttest.Receipt)
		missing string
	}{
		{
			name:    "payer label",
			edit:    func(r *receipttest.Receipt) { r.Omit = []string{receipttest.LabelPayer} },
			missing: receipt.FieldPayer,
		},
		{
			name:    "payer account",
			edit:    func(r *receipttest.Receipt) { r.PayerAccount = "N/A" },
			missing: receipt.FieldPayerAccount,
		},
		{
			name:    "receiver label",
			edit:    func(r *receipttest.Receipt) { r.Omit = []string{receipttest.LabelReceiver} },
			missing: receipt.FieldReceiver,
		},
		{
			name:    "receiver account",
			edit:    func(r *receipttest.Receipt) { r.ReceiverAccount = "N/A" },
			missing: receipt.FieldReceiverAccount,
		},
		{
			name:    "amount label",
			edit:    func(r *receipttest.Receipt) { r.Omit = []string{receipttest.LabelAmount} },
			missing: receipt.FieldAmount,
		},
		{
			name:    "date label",
			edit:    func(r *receipttest.Receipt) { r.Omit = []string{receipttest.LabelDate} },
			missing: receipt.FieldDate,
		},
		{
			name:    "reference label",
			edit:    func(r *receipttest.Receipt) { r.Omit = []string{receipttest.LabelReference} },
			missing: receipt.FieldReference,
		},
	}

	p := receipt.NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := receipttest.Default()
			tt.edit(&r)
			f := p.ParseText(r.Text())

			assert.False(t, f.Complete())
			assert.Equal(t, []string{tt.missing}, f.Missing)
			assert.Contains(t, f.Error, tt.missing)

			present := map[string]bool{
				receipt.FieldPayer:           f.Payer != "",
				receipt.FieldPayerAccount:    f.PayerAccount != "",
				receipt.FieldReceiver:        f.Receiver != "",
				receipt.FieldReceiverAccount: f.ReceiverAccount != "",
				receipt.FieldAmount:          f.Amount.Valid,
				receipt.FieldDate:            f.Date != nil,
				receipt.FieldReference:       f.Reference != "",
			}
			for field, ok := range present {
				assert.Equal(t, field != tt.missing, ok, "field %s", field)
			}
		})
	}
}

func TestParseText_ReasonIsOptional(t *testing.T) {
	r := receipttest.Default()
	r.Omit = []string{receipttest.LabelReason}
	f := receipt.NewParser().ParseText(r.Text())

	assert.True(t, f.Complete())
	assert.Empty(t, f.Reason)
}

func TestParseText_PositionalAccountsWithoutLabels(t *testing.T) {
	f := receipt.NewParser().ParseText("Account 1****1111 some text Account 2****2222 Account 3****3333")
	assert.Equal(t, "1****1111", f.PayerAccount)
	assert.Equal(t, "2****2222", f.ReceiverAccount)

	f = receipt.NewParser().ParseText("Account 1****1111")
	assert.Equal(t, "1****1111", f.PayerAccount)
	assert.Empty(t, f.ReceiverAccount)
}

func TestParseText_PositionalAccountsOption(t *testing.T) {
	text := "Payer ABEBE Account 1****1234 Receiver EDIR Account 1****5678"
	f := receipt.NewParser(receipt.WithPositionalAccounts()).ParseText(text)
	assert.Equal(t, "1****1234", f.PayerAccount)
	assert.Equal(t, "1****5678", f.ReceiverAccount)

	// Without a readable payer account the receiver's moves up.
	text = "Payer ABEBE Account n/a Receiver EDIR Account 1****5678"
	f = receipt.NewParser(receipt.WithPositionalAccounts()).ParseText(text)
	assert.Equal(t, "1****5678", f.PayerAccount)
	assert.Empty(t, f.ReceiverAccount)

	f = receipt.NewParser().ParseText(text)
	assert.Empty(t, f.PayerAccount)
	assert.Equal(t, "1****5678", f.ReceiverAccount)
}

func TestParseText_Amount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "1,234.56", want: "1234.56"},
		{in: "234.56", want: "234.56"},
		{in: "1,000,000.00", want: "1000000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f := receipt.NewParser().ParseText("Transferred Amount " + tt.in + " ETB")
			require.True(t, f.Amount.Valid)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(f.Amount.Decimal), "got %s", f.Amount.Decimal)
			assert.Equal(t, int32(-2), f.Amount.Decimal.Exponent())
		})
	}

	f := receipt.NewParser().ParseText("Transferred Amount 1,234.5 ETB")
	assert.False(t, f.Amount.Valid)
}

func TestParseText_DateVariants(t *testing.T) {
	want := time.Date(2024, 3, 15, 14, 30, 0, 0, receipt.EastAfricaTime)
	variants := []string{
		"3/15/2024, 2:30:00 PM",
		"15/3/2024, 2:30:00 PM",
		"3/15/2024, 2:30 PM",
		"15/3/2024, 2:30 PM",
	}
	p := receipt.NewParser()
	for _, v := range variants {
		t.Run(v, func(t *testing.T) {
			f := p.ParseText("Payment Date & Time " + v)
			require.NotNil(t, f.Date)
			assert.True(t, want.Equal(*f.Date), "got %v", f.Date)
		})
	}
}

func TestParseText_UnparseableDate(t *testing.T) {
	f := receipt.NewParser().ParseText("Payment Date & Time 13/13/2024, 2:30 PM")
	assert.Nil(t, f.Date)
	assert.Contains(t, f.Missing, receipt.FieldDate)
}

func TestParseText_Location(t *testing.T) {
	f := receipt.NewParser(receipt.WithLocation(time.UTC)).ParseText("Payment Date & Time 1/2/2024, 9:05 AM")
	require.NotNil(t, f.Date)
	assert.True(t, time.Date(2024, 1, 2, 9, 5, 0, 0, time.UTC).Equal(*f.Date))
}

func TestParseDate(t *testing.T) {
	_, err := receipt.ParseDate("not a date", time.UTC)
	assert.Error(t, err)
}

func TestParse_PDF(t *testing.T) {
	f := receipt.NewParser().Parse(receipttest.Default().PDF())

	require.True(t, f.Complete(), "missing: %v (%s)", f.Missing, f.Error)
	assert.Equal(t, "Edir Savings Association", f.Receiver)
	assert.Equal(t, "1****5678", f.ReceiverAccount)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(f.Amount.Decimal))
}

func TestParse_NotAPDF(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("<html>please wait</html>"), []byte("%PDF-1.4\ngarbage")} {
		f := receipt.NewParser().Parse(b)
		assert.True(t, f.Critical)
		assert.False(t, f.Complete())
		assert.Equal(t, receipt.RequiredFields(), f.Missing)
		assert.Contains(t, f.Error, "critical error parsing PDF data")
		assert.Empty(t, f.Payer)
	}
}

func TestExtractText(t *testing.T) {
	text, err := receipt.ExtractText(receipttest.PDF([]string{"Hello   (world)", "second\tline"}))
	require.NoError(t, err)
	assert.Equal(t, "Hello (world) second line", text)
}

func TestExtractText_SeparatesLines(t *testing.T) {
	text, err := receipt.ExtractText(receipttest.PDF([]string{
		"Payer ABEBE Account 1****1234",
		"Receiver EDIR Account 1****5678",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Payer ABEBE Account 1****1234 Receiver EDIR Account 1****5678", text)

	f := receipt.NewParser().ParseText(text)
	assert.Equal(t, "Abebe", f.Payer)
	assert.Equal(t, "Edir", f.Receiver)
	assert.Equal(t, "1****1234", f.PayerAccount)
	assert.Equal(t, "1****5678", f.ReceiverAccount)
}
