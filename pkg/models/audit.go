package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is kept for every verification attempt. The receipt PDF itself
// is never stored, only the fields read from it.
type AuditRecord struct {
	ID        uuid.UUID  `json:"id"`
	EdirSlug  string     `json:"edirSlug"`
	PaymentID *uuid.UUID `json:"paymentId,omitempty"`
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	LookupURL string     `json:"lookupUrl,omitempty"`
	Via       string     `json:"via,omitempty"`

	// Fields holds the receipt fields as JSON, if any were read.
	Fields    json.RawMessage `json:"fields,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
