// Package payments stores edirs and member payments and applies
// verification outcomes to them.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

var log = logrus.StandardLogger().WithField("package", "payments")

var ErrNotFound = errors.New("not found")

type Repository interface {
	GetEdir(ctx context.Context, slug string) (*models.Edir, error)
	CreateEdir(ctx context.Context, e *models.Edir) error
	// UpsertEdir creates the edir or updates the one with the same slug,
	// setting e.ID to the stored ID.
	UpsertEdir(ctx context.Context, e *models.Edir) error

	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	SavePayment(ctx context.Context, p *models.Payment) error
	// ListPayments returns the payments of an edir, newest first. An empty
	// status lists all of them.
	ListPayments(ctx context.Context, edirID uuid.UUID, status models.PaymentStatus) ([]models.Payment, error)
	Summary(ctx context.Context, edirID uuid.UUID) (*Summary, error)

	Close() error
}

type Summary struct {
	TotalPayments   int64           `json:"totalPayments"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PendingPayments int64           `json:"pendingPayments"`
}

// Summarize counts completed and pending payments and totals the completed
// amounts.
func Summarize(ps []models.Payment) *Summary {
	s := &Summary{TotalAmount: decimal.Zero}
	for _, p := range ps {
		switch p.Status {
		case models.PaymentCompleted:
			s.TotalPayments++
			s.TotalAmount = s.TotalAmount.Add(p.Amount)
		case models.PaymentPending:
			s.PendingPayments++
		}
	}
	return s
}

// Apply records the outcome of a verification on p. It reports whether p was
// changed: retrieval failures and invalid input leave the payment as it was.
func Apply(p *models.Payment, o *verifier.Outcome, now time.Time) bool {
	switch o.Status {
	case verifier.StatusSuccess:
		f := o.Fields
		p.Status = models.PaymentCompleted
		p.VerifiedAt = &now
		p.VerificationError = ""
		p.TransactionReference = f.Reference
		p.PayerName = f.Payer
		p.PayerAccount = f.PayerAccount
		p.TransactionDate = f.Date
		if f.Amount.Valid {
			p.Amount = f.Amount.Decimal
		}
		p.VerificationDetails = details(map[string]any{
			"receiver":         f.Receiver,
			"receiver_account": f.ReceiverAccount,
			"reason":           f.Reason,
			"source_url":       o.SourceURL,
			"via":              o.Via,
		})
	case verifier.StatusReceiverMismatch:
		f := o.Fields
		p.Status = models.PaymentFailed
		p.VerifiedAt = &now
		p.VerificationError = o.Message
		p.TransactionReference = f.Reference
		p.PayerName = f.Payer
		p.PayerAccount = f.PayerAccount
		d := map[string]any{
			"retrieved_receiver":         f.Receiver,
			"retrieved_receiver_account": f.ReceiverAccount,
			"retrieved_reason":           f.Reason,
			"mismatches":                 o.Mismatches,
		}
		if f.Amount.Valid {
			d["retrieved_amount"] = f.Amount.Decimal.StringFixed(2)
		}
		if f.Date != nil {
			d["retrieved_date"] = f.Date.Format(time.RFC3339)
		}
		p.VerificationDetails = details(d)
	case verifier.StatusParsingFailed:
		p.Status = models.PaymentFailed
		p.VerifiedAt = &now
		p.VerificationError = o.Message
		if o.Fields != nil {
			p.VerificationDetails = details(map[string]any{
				"missing":  o.Fields.Missing,
				"critical": o.Fields.Critical,
			})
		}
	default:
		return false
	}
	return true
}

func details(v map[string]any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warnf("unable to encode verification details: %v", err)
		return nil
	}
	return datatypes.JSON(b)
}
