package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edirhub/verify-backend/pkg/crypt"
	"github.com/edirhub/verify-backend/pkg/models"
)

var ErrNotFound = errors.New("audit record not found")

type Storer interface {
	Store(ctx context.Context, rec models.AuditRecord) error
}

type Retriever interface {
	Retrieve(ctx context.Context, edirSlug string, id uuid.UUID) (*models.AuditRecord, error)
}

type RWStorage interface {
	Storer
	Retriever
}

// ObjectName is where a record lives, relative to the storage root.
func ObjectName(edirSlug string, id uuid.UUID) string {
	return edirSlug + "/" + id.String() + ".json"
}

// Marshal encodes rec as JSON, encrypted when c is not nil.
func Marshal(rec models.AuditRecord, c *crypt.Cipher) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("unable to encode audit record: %w", err)
	}
	if c == nil {
		return b, nil
	}
	return c.Encrypt(b)
}

func Unmarshal(b []byte, c *crypt.Cipher) (*models.AuditRecord, error) {
	if c != nil {
		var err error
		if b, err = c.Decrypt(b); err != nil {
			return nil, err
		}
	}
	var rec models.AuditRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("unable to decode audit record: %w", err)
	}
	return &rec, nil
}
