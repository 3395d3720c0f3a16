// Package gormstore is a payments.Repository backed by PostgreSQL via gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
)

var log = logrus.StandardLogger().WithField("package", "gormstore")

type Store struct {
	db *gorm.DB
}

var _ payments.Repository = (*Store)(nil)

// Open connects to the database at dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.Edir{}, &models.Payment{}); err != nil {
		return nil, fmt.Errorf("unable to migrate schema: %w", err)
	}
	log.Debugf("schema migrated")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, payments.ErrNotFound)
	}
	return err
}

func (s *Store) GetEdir(ctx context.Context, slug string) (*models.Edir, error) {
	var e models.Edir
	if err := s.db.WithContext(ctx).First(&e, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err, "edir "+slug)
	}
	return &e, nil
}

func (s *Store) CreateEdir(ctx context.Context, e *models.Edir) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *Store) UpsertEdir(ctx context.Context, e *models.Edir) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "cbe_account_number", "account_holder_name"}),
		}).
		Create(e).Error
	if err != nil {
		return err
	}
	// On conflict the generated ID was not stored.
	stored, err := s.GetEdir(ctx, e.Slug)
	if err != nil {
		return err
	}
	e.ID = stored.ID
	e.CreatedAt = stored.CreatedAt
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "payment "+id.String())
	}
	return &p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) SavePayment(ctx context.Context, p *models.Payment) error {
	res := s.db.WithContext(ctx).Model(p).Select("*").Omit("id", "edir_id", "created_at").Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, payments.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, edirID uuid.UUID, status models.PaymentStatus) ([]models.Payment, error) {
	q := s.db.WithContext(ctx).Model(&models.Payment{}).Where("edir_id = ?", edirID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var ps []models.Payment
	err := q.Order("payment_date DESC").Order("created_at DESC").Find(&ps).Error
	return ps, err
}

func (s *Store) Summary(ctx context.Context, edirID uuid.UUID) (*payments.Summary, error) {
	var ps []models.Payment
	err := s.db.WithContext(ctx).
		Select("status", "amount").
		Where("edir_id = ? AND status IN ?", edirID, []models.PaymentStatus{models.PaymentCompleted, models.PaymentPending}).
		Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return payments.Summarize(ps), nil
}
