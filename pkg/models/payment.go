package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidSlug reports whether s can identify an edir. Slugs end up in
// storage paths, so dots and separators are not allowed.
func ValidSlug(s string) bool {
	return slugRe.MatchString(s)
}

// Edir is a tenant: a community savings association with a CBE account
// that members pay into.
type Edir struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug              string    `gorm:"uniqueIndex;not null" json:"slug"`
	Name              string    `json:"name"`
	CbeAccountNumber  string    `json:"cbeAccountNumber,omitempty"`
	AccountHolderName string    `json:"accountHolderName,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EdirID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"edirId"`
	MemberName    string          `json:"memberName"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Status        PaymentStatus   `gorm:"index;not null" json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentDate   time.Time       `json:"paymentDate"`

	TransactionReference string         `gorm:"index" json:"transactionReference,omitempty"`
	PayerName            string         `json:"payerName,omitempty"`
	PayerAccount         string         `json:"payerAccount,omitempty"`
	TransactionDate      *time.Time     `json:"transactionDate,omitempty"`
	VerifiedAt           *time.Time     `json:"verifiedAt,omitempty"`
	VerificationError    string         `json:"verificationError,omitempty"`
	VerificationDetails  datatypes.JSON `json:"verificationDetails,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
