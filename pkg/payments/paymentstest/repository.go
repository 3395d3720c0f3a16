// Package paymentstest checks payments.Repository implementations.
package paymentstest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
)

// TestRepository runs the behaviour every repository must share. Slugs are
// random so that it can run against a shared database.
func TestRepository(t *testing.T, repo payments.Repository) {
	ctx := context.Background()
	slug := "edir-" + uuid.NewString()[:8]

	t.Run("edirs", func(t *testing.T) {
		_, err := repo.GetEdir(ctx, slug)
		assert.ErrorIs(t, err, payments.ErrNotFound)

		e := &models.Edir{Slug: slug, Name: "Addis Edir", CbeAccountNumber: "1000123455678"}
		require.NoError(t, repo.CreateEdir(ctx, e))
		assert.NotEqual(t, uuid.Nil, e.ID)

		got, err := repo.GetEdir(ctx, slug)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, "1000123455678", got.CbeAccountNumber)

		upd := &models.Edir{Slug: slug, Name: "Addis Edir", CbeAccountNumber: "1000999990000", AccountHolderName: "Addis Edir Association"}
		require.NoError(t, repo.UpsertEdir(ctx, upd))
		assert.Equal(t, e.ID, upd.ID)

		got, err = repo.GetEdir(ctx, slug)
		require.NoError(t, err)
		assert.Equal(t, "1000999990000", got.CbeAccountNumber)
		assert.Equal(t, "Addis Edir Association", got.AccountHolderName)

		other := &models.Edir{Slug: slug + "-new", Name: "New"}
		require.NoError(t, repo.UpsertEdir(ctx, other))
		assert.NotEqual(t, uuid.Nil, other.ID)
	})

	t.Run("payments", func(t *testing.T) {
		edir, err := repo.GetEdir(ctx, slug)
		require.NoError(t, err)

		_, err = repo.GetPayment(ctx, uuid.New())
		assert.ErrorIs(t, err, payments.ErrNotFound)

		base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		ps := []*models.Payment{
			{EdirID: edir.ID, MemberName: "Abebe", Amount: decimal.RequireFromString("100.50"), PaymentDate: base},
			{EdirID: edir.ID, MemberName: "Kebede", Amount: decimal.RequireFromString("200.25"), PaymentDate: base.AddDate(0, 0, 1)},
			{EdirID: edir.ID, MemberName: "Tesfaye", Amount: decimal.RequireFromString("50.00"), PaymentDate: base.AddDate(0, 0, 2)},
		}
		for _, p := range ps {
			require.NoError(t, repo.CreatePayment(ctx, p))
			assert.Equal(t, models.PaymentPending, p.Status)
		}

		verified := time.Date(2024, 3, 15, 11, 30, 45, 0, time.UTC)
		p := ps[0]
		p.Status = models.PaymentCompleted
		p.TransactionReference = "FT24075ABCD1"
		p.PayerName = "Abebe Kebede"
		p.PayerAccount = "1****1234"
		p.Amount = decimal.RequireFromString("1234.56")
		p.TransactionDate = &verified
		p.VerifiedAt = &verified
		p.VerificationDetails = datatypes.JSON(`{"receiver":"Addis Edir"}`)
		require.NoError(t, repo.SavePayment(ctx, p))

		got, err := repo.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCompleted, got.Status)
		assert.Equal(t, "FT24075ABCD1", got.TransactionReference)
		assert.Equal(t, "1****1234", got.PayerAccount)
		assert.True(t, decimal.RequireFromString("1234.56").Equal(got.Amount))
		require.NotNil(t, got.TransactionDate)
		assert.True(t, verified.Equal(*got.TransactionDate))
		assert.JSONEq(t, `{"receiver":"Addis Edir"}`, string(got.VerificationDetails))

		ps[1].Status = models.PaymentFailed
		ps[1].VerificationError = "Receiver mismatch"
		require.NoError(t, repo.SavePayment(ctx, ps[1]))

		all, err := repo.ListPayments(ctx, edir.ID, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "Tesfaye", all[0].MemberName)
		assert.Equal(t, "Abebe", all[2].MemberName)

		pending, err := repo.ListPayments(ctx, edir.ID, models.PaymentPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, ps[2].ID, pending[0].ID)

		summary, err := repo.Summary(ctx, edir.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.TotalPayments)
		assert.Equal(t, int64(1), summary.PendingPayments)
		assert.True(t, decimal.RequireFromString("1234.56").Equal(summary.TotalAmount))

		missing := &models.Payment{ID: uuid.New(), EdirID: edir.ID, Amount: decimal.Zero, Status: models.PaymentPending, PaymentDate: base}
		assert.ErrorIs(t, repo.SavePayment(ctx, missing), payments.ErrNotFound)
	})
}
