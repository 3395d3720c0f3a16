// Package sqlitestore is a payments.Repository backed by an embedded SQLite
// database, for single node deployments and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	_ "modernc.org/sqlite"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
)

var log = logrus.StandardLogger().WithField("package", "sqlitestore")

// Times are stored as fixed-width UTC text so that they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

var _ payments.Repository = (*Store)(nil)

// Open opens (or creates) the database at dsn and creates missing tables.
// Pass ":memory:" for an in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open db: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("unable to run %q: %w", pragma, err)
		}
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create tables: %w", err)
	}
	log.Debugf("opened sqlite database %s", dsn)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS edirs (
			id TEXT PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			cbe_account_number TEXT NOT NULL DEFAULT '',
			account_holder_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			edir_id TEXT NOT NULL,
			member_name TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			payment_date TEXT NOT NULL,
			transaction_reference TEXT NOT NULL DEFAULT '',
			payer_name TEXT NOT NULL DEFAULT '',
			payer_account TEXT NOT NULL DEFAULT '',
			transaction_date TEXT,
			verified_at TEXT,
			verification_error TEXT NOT NULL DEFAULT '',
			verification_details TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (edir_id) REFERENCES edirs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_edir ON payments(edir_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments(transaction_reference)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetEdir(ctx context.Context, slug string) (*models.Edir, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, cbe_account_number, account_holder_name, created_at
		FROM edirs WHERE slug = ?`, slug)

	var e models.Edir
	var createdAt string
	err := row.Scan(&e.ID, &e.Slug, &e.Name, &e.CbeAccountNumber, &e.AccountHolderName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edir %s: %w", slug, payments.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateEdir(ctx context.Context, e *models.Edir) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO edirs (id, slug, name, cbe_account_number, account_holder_name, created_at)
		VALUES (?,?,?,?,?,?)`,
		e.ID.String(), e.Slug, e.Name, e.CbeAccountNumber, e.AccountHolderName, formatTime(e.CreatedAt))
	return err
}

func (s *Store) UpsertEdir(ctx context.Context, e *models.Edir) error {
	existing, err := s.GetEdir(ctx, e.Slug)
	if errors.Is(err, payments.ErrNotFound) {
		return s.CreateEdir(ctx, e)
	}
	if err != nil {
		return err
	}
	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	_, err = s.db.ExecContext(ctx,
		`UPDATE edirs SET name = ?, cbe_account_number = ?, account_holder_name = ? WHERE id = ?`,
		e.Name, e.CbeAccountNumber, e.AccountHolderName, e.ID.String())
	return err
}

const paymentColumns = `id, edir_id, member_name, amount, status, payment_method, payment_date,
	transaction_reference, payer_name, payer_account, transaction_date, verified_at,
	verification_error, verification_details, created_at, updated_at`

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ps, err := scanPayments(rows)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("payment %s: %w", id, payments.ErrNotFound)
	}
	return &ps[0], nil
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.PaymentDate.IsZero() {
		p.PaymentDate = now
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO payments ("+paymentColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		paymentArgs(p)...)
	return err
}

func (s *Store) SavePayment(ctx context.Context, p *models.Payment) error {
	p.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET member_name = ?, amount = ?, status = ?, payment_method = ?,
		payment_date = ?, transaction_reference = ?, payer_name = ?, payer_account = ?,
		transaction_date = ?, verified_at = ?, verification_error = ?, verification_details = ?,
		updated_at = ? WHERE id = ?`,
		append(paymentArgs(p)[2:14], formatTime(p.UpdatedAt), p.ID.String())...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, payments.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, edirID uuid.UUID, status models.PaymentStatus) ([]models.Payment, error) {
	q := "SELECT " + paymentColumns + " FROM payments WHERE edir_id = ?"
	args := []any{edirID.String()}
	if status != "" {
		q += " AND status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY payment_date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (s *Store) Summary(ctx context.Context, edirID uuid.UUID) (*payments.Summary, error) {
	ps, err := s.ListPayments(ctx, edirID, "")
	if err != nil {
		return nil, err
	}
	return payments.Summarize(ps), nil
}

// paymentArgs follows the order of paymentColumns.
func paymentArgs(p *models.Payment) []any {
	var details any
	if len(p.VerificationDetails) > 0 {
		details = string(p.VerificationDetails)
	}
	return []any{
		p.ID.String(),
		p.EdirID.String(),
		p.MemberName,
		p.Amount.StringFixed(2),
		string(p.Status),
		p.PaymentMethod,
		formatTime(p.PaymentDate),
		p.TransactionReference,
		p.PayerName,
		p.PayerAccount,
		formatNullTime(p.TransactionDate),
		formatNullTime(p.VerifiedAt),
		p.VerificationError,
		details,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	}
}

func scanPayments(rows *sql.Rows) ([]models.Payment, error) {
	var out []models.Payment
	for rows.Next() {
		var p models.Payment
		var amount, status, paymentDate, createdAt, updatedAt string
		var transactionDate, verifiedAt, details sql.NullString
		err := rows.Scan(
			&p.ID, &p.EdirID, &p.MemberName, &amount, &status, &p.PaymentMethod, &paymentDate,
			&p.TransactionReference, &p.PayerName, &p.PayerAccount, &transactionDate, &verifiedAt,
			&p.VerificationError, &details, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		p.Status = models.PaymentStatus(status)
		if details.Valid {
			p.VerificationDetails = datatypes.JSON(details.String)
		}
		if p.PaymentDate, err = parseTime(paymentDate); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if p.TransactionDate, err = parseNullTime(transactionDate); err != nil {
			return nil, err
		}
		if p.VerifiedAt, err = parseNullTime(verifiedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
