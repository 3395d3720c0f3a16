package verifier_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/h2non/gock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirhub/verify-backend/pkg/browser/mocks"
	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/receipt"
	"github.com/edirhub/verify-backend/pkg/receipt/receipttest"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	os.Exit(m.Run())
}

// stubRetriever serves a fixed document or error and counts calls.
type stubRetriever struct {
	doc   *portal.Document
	err   error
	calls int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ portal.LookupKey) (*portal.Document, error) {
	s.calls++
	return s.doc, s.err
}

func receiptDoc(r receipttest.Receipt) *portal.Document {
	return &portal.Document{Body: r.PDF(), ContentType: "application/pdf", URL: "https://apps.cbe.com.et:100/?id=FT1", Via: portal.StrategyDirect}
}

var key = portal.KeyFromReference("FT24075ABCD1", "12345678")

func TestVerify_InvalidInput(t *testing.T) {
	r := &stubRetriever{}
	v := verifier.New(r, receipt.NewParser())

	outcome, err := v.Verify(context.Background(), portal.KeyFromReference(" ", ""), verifier.ExpectedIdentity{})
	assert.ErrorIs(t, err, verifier.ErrInvalidInput)
	assert.ErrorIs(t, err, portal.ErrInvalidLookupKey)
	assert.Equal(t, verifier.StatusInvalidInput, outcome.Status)
	assert.Zero(t, r.calls)
}

func TestVerify_ServiceUnavailable(t *testing.T) {
	retrievalErr := &portal.RetrievalError{URL: "https://apps.cbe.com.et:100/?id=FT1", Err: portal.ErrNoPDFDetected}
	v := verifier.New(&stubRetriever{err: retrievalErr}, receipt.NewParser())

	outcome, err := v.Verify(context.Background(), key, verifier.ExpectedIdentity{AccountSuffix: "5678"})
	var target *portal.RetrievalError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, verifier.StatusServiceUnavailable, outcome.Status)
	assert.Nil(t, outcome.Fields)
	assert.False(t, outcome.Verified())
}

func TestVerify_ParsingFailed(t *testing.T) {
	r := receipttest.Default()
	r.Omit = []string{receipttest.LabelAmount}
	v := verifier.New(&stubRetriever{doc: receiptDoc(r)}, receipt.NewParser())

	outcome, err := v.Verify(context.Background(), key, verifier.ExpectedIdentity{AccountSuffix: "5678"})
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusParsingFailed, outcome.Status)
	require.NotNil(t, outcome.Fields)
	assert.Equal(t, []string{receipt.FieldAmount}, outcome.Fields.Missing)
	assert.Equal(t, "Edir Savings Association", outcome.Fields.Receiver)
	assert.Contains(t, outcome.Message, receipt.FieldAmount)
}

func TestVerify_NotAPDF(t *testing.T) {
	doc := &portal.Document{Body: []byte("<html></html>"), URL: "https://apps.cbe.com.et:100/?id=FT1"}
	v := verifier.New(&stubRetriever{doc: doc}, receipt.NewParser())

	outcome, err := v.Verify(context.Background(), key, verifier.ExpectedIdentity{})
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusParsingFailed, outcome.Status)
	assert.True(t, outcome.Fields.Critical)
	assert.Equal(t, receipt.RequiredFields(), outcome.Fields.Missing)
}

func TestVerify_Reconciliation(t *testing.T) {
	tests := []struct {
		name       string
		identity   verifier.ExpectedIdentity
		status     verifier.Status
		mismatches []string
	}{
		{"no identity", verifier.ExpectedIdentity{}, verifier.StatusSuccess, nil},
		{"suffix matches", verifier.ExpectedIdentity{AccountSuffix: "5678"}, verifier.StatusSuccess, nil},
		{"name matches ignoring case", verifier.ExpectedIdentity{HolderName: "EDIR savings association"}, verifier.StatusSuccess, nil},
		{"both match", verifier.IdentityFromAccount("1000123455678", "Edir Savings Association"), verifier.StatusSuccess, nil},
		{"suffix differs", verifier.ExpectedIdentity{AccountSuffix: "9999"}, verifier.StatusReceiverMismatch, []string{receipt.FieldReceiverAccount}},
		{"name differs", verifier.ExpectedIdentity{HolderName: "Other Edir"}, verifier.StatusReceiverMismatch, []string{receipt.FieldReceiver}},
		{
			"name matches but suffix differs",
			verifier.ExpectedIdentity{AccountSuffix: "0000", HolderName: "Edir Savings Association"},
			verifier.StatusReceiverMismatch,
			[]string{receipt.FieldReceiverAccount},
		},
		{
			"both differ",
			verifier.ExpectedIdentity{AccountSuffix: "0000", HolderName: "Other Edir"},
			verifier.StatusReceiverMismatch,
			[]string{receipt.FieldReceiverAccount, receipt.FieldReceiver},
		},
	}

	v := verifier.New(&stubRetriever{doc: receiptDoc(receipttest.Default())}, receipt.NewParser())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := v.Verify(context.Background(), key, tt.identity)
			require.NoError(t, err)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.mismatches, outcome.Mismatches)
			for _, m := range tt.mismatches {
				switch m {
				case receipt.FieldReceiverAccount:
					assert.Contains(t, outcome.Message, "receiver account")
				case receipt.FieldReceiver:
					assert.Contains(t, outcome.Message, "receiver name")
				}
			}
		})
	}
}

func TestReconcile_SuffixIsCaseInsensitive(t *testing.T) {
	f := receipt.Fields{ReceiverAccount: "1****AB12", Receiver: "Edir"}
	assert.Empty(t, verifier.Reconcile(f, verifier.ExpectedIdentity{AccountSuffix: "ab12"}))
	assert.Equal(t, []string{receipt.FieldReceiverAccount}, verifier.Reconcile(f, verifier.ExpectedIdentity{AccountSuffix: "ab13"}))
}

func TestIdentityFromAccount(t *testing.T) {
	assert.Equal(t, verifier.ExpectedIdentity{AccountSuffix: "5678", HolderName: "Edir"}, verifier.IdentityFromAccount(" 1000123455678 ", " Edir "))
	assert.Equal(t, verifier.ExpectedIdentity{AccountSuffix: "78"}, verifier.IdentityFromAccount("78", ""))
	assert.True(t, verifier.IdentityFromAccount("", "").IsZero())
}

// TestVerify_EndToEnd runs the real retriever and parser against a portal
// that serves a synthetic receipt.
func TestVerify_EndToEnd(t *testing.T) {
	defer gock.Off()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gock.New("https://apps.cbe.com.et:100").
		Get("/").
		MatchParam("id", "FT24075ABCD112345678").
		Reply(200).
		SetHeader("Content-Type", "application/pdf").
		Body(bytes.NewReader(receipttest.Default().PDF()))

	client := portal.NewClient()
	client.SetHttpTransport(gock.DefaultTransport)
	retriever := portal.NewRetriever(client, mocks.NewMockLauncher(ctrl))
	v := verifier.New(retriever, receipt.NewParser())

	outcome, err := v.Verify(context.Background(), key, verifier.IdentityFromAccount("1000000005678", "Edir Savings Association"))
	require.NoError(t, err)
	require.Equal(t, verifier.StatusSuccess, outcome.Status, outcome.Message)
	assert.True(t, outcome.Verified())
	assert.Equal(t, portal.StrategyDirect, outcome.Via)

	f := outcome.Fields
	assert.Equal(t, "Abebe Kebede Tesfaye", f.Payer)
	assert.Equal(t, "1****1234", f.PayerAccount)
	assert.Equal(t, "Edir Savings Association", f.Receiver)
	assert.Equal(t, "1****5678", f.ReceiverAccount)
	assert.Equal(t, "FT24075ABCD1", f.Reference)
	assert.Equal(t, "monthly contribution", f.Reason)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(f.Amount.Decimal))
	require.NotNil(t, f.Date)
	assert.True(t, time.Date(2024, 3, 15, 14, 30, 45, 0, receipt.EastAfricaTime).Equal(*f.Date))
	assert.True(t, gock.IsDone())
}

func TestVerify_EndToEndServiceUnavailable(t *testing.T) {
	defer gock.Off()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gock.New("https://apps.cbe.com.et:100").
		Get("/").
		MatchParam("id", "FT24075ABCD112345678").
		Reply(503)

	launcher := mocks.NewMockLauncher(ctrl)
	launcher.EXPECT().Launch(gomock.Any()).Return(nil, errors.New("no chrome"))

	client := portal.NewClient()
	client.SetHttpTransport(gock.DefaultTransport)
	v := verifier.New(portal.NewRetriever(client, launcher), receipt.NewParser())

	outcome, err := v.Verify(context.Background(), key, verifier.ExpectedIdentity{})
	assert.Error(t, err)
	assert.Equal(t, verifier.StatusServiceUnavailable, outcome.Status)
}
