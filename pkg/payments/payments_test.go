package payments_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
	"github.com/edirhub/verify-backend/pkg/payments/sqlitestore"
	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/receipt"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	os.Exit(m.Run())
}

var now = time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC)

func completeFields() *receipt.Fields {
	date := time.Date(2024, 3, 15, 14, 30, 45, 0, receipt.EastAfricaTime)
	return &receipt.Fields{
		Payer:           "Abebe Kebede",
		PayerAccount:    "1****1234",
		Receiver:        "Addis Edir",
		ReceiverAccount: "1****5678",
		Amount:          decimal.NewNullDecimal(decimal.RequireFromString("1234.56")),
		Date:            &date,
		Reference:       "FT24075ABCD1",
		Reason:          "monthly contribution",
	}
}

func pendingPayment() *models.Payment {
	return &models.Payment{
		ID:     uuid.New(),
		Amount: decimal.RequireFromString("1000.00"),
		Status: models.PaymentPending,
	}
}

func TestApply_Success(t *testing.T) {
	p := pendingPayment()
	f := completeFields()
	changed := payments.Apply(p, &verifier.Outcome{Status: verifier.StatusSuccess, Fields: f, SourceURL: "https://x/?id=1", Via: portal.StrategyDirect}, now)

	require.True(t, changed)
	assert.Equal(t, models.PaymentCompleted, p.Status)
	assert.Equal(t, "FT24075ABCD1", p.TransactionReference)
	assert.Equal(t, "Abebe Kebede", p.PayerName)
	assert.Equal(t, "1****1234", p.PayerAccount)
	assert.Equal(t, f.Date, p.TransactionDate)
	assert.Equal(t, &now, p.VerifiedAt)
	assert.Empty(t, p.VerificationError)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(p.Amount))

	var d map[string]any
	require.NoError(t, json.Unmarshal(p.VerificationDetails, &d))
	assert.Equal(t, "Addis Edir", d["receiver"])
	assert.Equal(t, "1****5678", d["receiver_account"])
	assert.Equal(t, "direct", d["via"])
}

func TestApply_ReceiverMismatch(t *testing.T) {
	p := pendingPayment()
	o := &verifier.Outcome{
		Status:     verifier.StatusReceiverMismatch,
		Fields:     completeFields(),
		Message:    "Receiver mismatch: receiver account ends in 5678, expected 0000",
		Mismatches: []string{receipt.FieldReceiverAccount},
	}
	require.True(t, payments.Apply(p, o, now))

	assert.Equal(t, models.PaymentFailed, p.Status)
	assert.Equal(t, o.Message, p.VerificationError)
	assert.Equal(t, "FT24075ABCD1", p.TransactionReference)
	assert.Nil(t, p.TransactionDate)
	// The claimed amount is kept.
	assert.True(t, decimal.RequireFromString("1000.00").Equal(p.Amount))

	var d map[string]any
	require.NoError(t, json.Unmarshal(p.VerificationDetails, &d))
	assert.Equal(t, "1234.56", d["retrieved_amount"])
	assert.Equal(t, "2024-03-15T14:30:45+03:00", d["retrieved_date"])
	assert.Equal(t, []any{"receiver_account"}, d["mismatches"])
}

func TestApply_ParsingFailed(t *testing.T) {
	p := pendingPayment()
	f := completeFields()
	f.Amount = decimal.NullDecimal{}
	f.Missing = []string{receipt.FieldAmount}
	require.True(t, payments.Apply(p, &verifier.Outcome{Status: verifier.StatusParsingFailed, Fields: f, Message: "missing: amount"}, now))

	assert.Equal(t, models.PaymentFailed, p.Status)
	assert.Equal(t, "missing: amount", p.VerificationError)
	assert.Empty(t, p.TransactionReference)
	assert.JSONEq(t, `{"missing":["amount"],"critical":false}`, string(p.VerificationDetails))
}

func TestApply_LeavesPaymentOnServiceErrors(t *testing.T) {
	for _, status := range []verifier.Status{verifier.StatusServiceUnavailable, verifier.StatusInvalidInput} {
		p := pendingPayment()
		before := *p
		assert.False(t, payments.Apply(p, &verifier.Outcome{Status: status, Message: "x"}, now))
		assert.Equal(t, before, *p)
	}
}

func TestSummarize(t *testing.T) {
	s := payments.Summarize([]models.Payment{
		{Status: models.PaymentCompleted, Amount: decimal.RequireFromString("0.10")},
		{Status: models.PaymentCompleted, Amount: decimal.RequireFromString("0.20")},
		{Status: models.PaymentPending, Amount: decimal.RequireFromString("5")},
		{Status: models.PaymentFailed, Amount: decimal.RequireFromString("7")},
	})
	assert.Equal(t, int64(2), s.TotalPayments)
	assert.Equal(t, int64(1), s.PendingPayments)
	assert.Equal(t, "0.3", s.TotalAmount.String())
}

type stubVerifier struct {
	outcome  *verifier.Outcome
	err      error
	identity verifier.ExpectedIdentity
}

func (s *stubVerifier) Verify(_ context.Context, _ portal.LookupKey, identity verifier.ExpectedIdentity) (*verifier.Outcome, error) {
	s.identity = identity
	return s.outcome, s.err
}

type memoryAudit struct {
	mutex   sync.Mutex
	records []models.AuditRecord
}

func (m *memoryAudit) Record(rec models.AuditRecord) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.records = append(m.records, rec)
}

func setup(t *testing.T, v payments.Verifier) (*payments.Service, *models.Edir, *models.Payment, *memoryAudit) {
	repo, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	edir := &models.Edir{Slug: "addis", Name: "Addis Edir", CbeAccountNumber: "1000123455678", AccountHolderName: "Addis Edir"}
	require.NoError(t, repo.CreateEdir(ctx, edir))
	p := &models.Payment{EdirID: edir.ID, MemberName: "Abebe", Amount: decimal.RequireFromString("1000.00")}
	require.NoError(t, repo.CreatePayment(ctx, p))

	audit := &memoryAudit{}
	s := payments.NewService(repo, v, payments.WithAuditRecorder(audit), payments.WithClock(func() time.Time { return now }))
	return s, edir, p, audit
}

var key = portal.KeyFromReference("FT24075ABCD1", "12345678")

func TestService_VerifyPayment(t *testing.T) {
	v := &stubVerifier{outcome: &verifier.Outcome{Status: verifier.StatusSuccess, Fields: completeFields(), Via: portal.StrategyIntercepted}}
	s, _, p, audit := setup(t, v)

	outcome, got, err := s.VerifyPayment(context.Background(), "addis", p.ID, key)
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusSuccess, outcome.Status)
	assert.Equal(t, models.PaymentCompleted, got.Status)
	assert.Equal(t, verifier.ExpectedIdentity{AccountSuffix: "5678", HolderName: "Addis Edir"}, v.identity)

	stored, err := s.Repository().GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(stored.Amount))

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, "addis", rec.EdirSlug)
	assert.Equal(t, &p.ID, rec.PaymentID)
	assert.Equal(t, "success", rec.Status)
	assert.Equal(t, "intercepted", rec.Via)
	assert.Equal(t, "FT24075ABCD112345678", rec.LookupURL)
	assert.Contains(t, string(rec.Fields), "FT24075ABCD1")
}

func TestService_ServiceUnavailableLeavesPayment(t *testing.T) {
	retrievalErr := &portal.RetrievalError{URL: "u", Err: portal.ErrNoPDFDetected}
	v := &stubVerifier{outcome: &verifier.Outcome{Status: verifier.StatusServiceUnavailable}, err: retrievalErr}
	s, _, p, audit := setup(t, v)

	outcome, _, err := s.VerifyPayment(context.Background(), "addis", p.ID, key)
	var target *portal.RetrievalError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, verifier.StatusServiceUnavailable, outcome.Status)

	stored, err := s.Repository().GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Nil(t, stored.VerifiedAt)
	assert.Len(t, audit.records, 1)
}

func TestService_NotFound(t *testing.T) {
	s, _, p, _ := setup(t, &stubVerifier{})

	_, _, err := s.VerifyPayment(context.Background(), "unknown", p.ID, key)
	assert.ErrorIs(t, err, payments.ErrNotFound)

	_, _, err = s.VerifyPayment(context.Background(), "addis", uuid.New(), key)
	assert.ErrorIs(t, err, payments.ErrNotFound)
}

func TestService_WrongEdir(t *testing.T) {
	s, _, p, audit := setup(t, &stubVerifier{})
	other := &models.Edir{Slug: "other"}
	require.NoError(t, s.Repository().CreateEdir(context.Background(), other))

	_, _, err := s.VerifyPayment(context.Background(), "other", p.ID, key)
	assert.True(t, errors.Is(err, payments.ErrWrongEdir))
	assert.Empty(t, audit.records)
}
