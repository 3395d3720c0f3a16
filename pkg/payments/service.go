package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

var ErrWrongEdir = errors.New("payment does not belong to this edir")

type Verifier interface {
	Verify(ctx context.Context, key portal.LookupKey, identity verifier.ExpectedIdentity) (*verifier.Outcome, error)
}

// AuditRecorder receives one record per verification attempt.
type AuditRecorder interface {
	Record(rec models.AuditRecord)
}

var _ Verifier = (*verifier.Verifier)(nil)

type Service struct {
	repo     Repository
	verifier Verifier
	audit    AuditRecorder
	now      func() time.Time
}

type Option func(*Service)

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, v Verifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		verifier: v,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Repository() Repository {
	return s.repo
}

// VerifyPayment verifies the receipt identified by key against the edir's
// configured account and stores the result on the payment. The returned
// error is non-nil when the payment or edir cannot be found, the key is
// invalid, or the receipt could not be retrieved; in the latter two cases an
// outcome is returned as well and the payment is left untouched.
func (s *Service) VerifyPayment(ctx context.Context, slug string, paymentID uuid.UUID, key portal.LookupKey) (*verifier.Outcome, *models.Payment, error) {
	edir, err := s.repo.GetEdir(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if p.EdirID != edir.ID {
		return nil, nil, ErrWrongEdir
	}

	identity := verifier.IdentityFromAccount(edir.CbeAccountNumber, edir.AccountHolderName)
	if identity.IsZero() {
		log.Infof("no CBE account or holder name configured for edir %s, skipping receiver check for payment %s", slug, p.ID)
	}

	outcome, verr := s.verifier.Verify(ctx, key, identity)
	s.record(edir.Slug, &p.ID, key, outcome)
	if verr != nil {
		return outcome, p, verr
	}

	if Apply(p, outcome, s.now()) {
		if err := s.repo.SavePayment(ctx, p); err != nil {
			return outcome, p, fmt.Errorf("unable to save payment: %w", err)
		}
	}
	return outcome, p, nil
}

func (s *Service) record(slug string, paymentID *uuid.UUID, key portal.LookupKey, o *verifier.Outcome) {
	if s.audit == nil || o == nil {
		return
	}
	rec := models.AuditRecord{
		ID:        uuid.New(),
		EdirSlug:  slug,
		PaymentID: paymentID,
		Status:    string(o.Status),
		Message:   o.Message,
		LookupURL: o.SourceURL,
		Via:       string(o.Via),
		CreatedAt: s.now(),
	}
	if rec.LookupURL == "" {
		rec.LookupURL = key.String()
	}
	if o.Fields != nil {
		b, err := json.Marshal(o.Fields)
		if err != nil {
			log.Warnf("unable to encode receipt fields for audit: %v", err)
		} else {
			rec.Fields = b
		}
	}
	s.audit.Record(rec)
}
