package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Names of the fields a receipt needs before its receiver can be trusted.
const (
	FieldPayer           = "payer"
	FieldPayerAccount    = "payer_account"
	FieldReceiver        = "receiver"
	FieldReceiverAccount = "receiver_account"
	FieldAmount          = "amount"
	FieldDate            = "date"
	FieldReference       = "reference"
)

// RequiredFields returns the required field names in reporting order.
func RequiredFields() []string {
	return []string{
		FieldPayer,
		FieldPayerAccount,
		FieldReceiver,
		FieldReceiverAccount,
		FieldAmount,
		FieldDate,
		FieldReference,
	}
}

// Fields is what could be read off a single receipt. Every value is
// optional: an empty string, an invalid Amount or a nil Date means the
// value was not found.
type Fields struct {
	Payer           string              `json:"payer,omitempty"`
	PayerAccount    string              `json:"payerAccount,omitempty"`
	Receiver        string              `json:"receiver,omitempty"`
	ReceiverAccount string              `json:"receiverAccount,omitempty"`
	Amount          decimal.NullDecimal `json:"amount"`
	Date            *time.Time          `json:"date,omitempty"`
	Reference       string              `json:"reference,omitempty"`
	Reason          string              `json:"reason,omitempty"`

	// Missing lists the required fields that could not be parsed.
	Missing []string `json:"missing,omitempty"`
	// Error is a human readable diagnostic, empty when Complete.
	Error string `json:"error,omitempty"`
	// Critical is set when the bytes could not be opened as a PDF at all.
	Critical bool `json:"critical,omitempty"`
}

// Complete reports whether every required field is present.
func (f Fields) Complete() bool {
	return len(f.missing()) == 0
}

func (f Fields) missing() []string {
	var m []string
	if f.Payer == "" {
		m = append(m, FieldPayer)
	}
	if f.PayerAccount == "" {
		m = append(m, FieldPayerAccount)
	}
	if f.Receiver == "" {
		m = append(m, FieldReceiver)
	}
	if f.ReceiverAccount == "" {
		m = append(m, FieldReceiverAccount)
	}
	if !f.Amount.Valid {
		m = append(m, FieldAmount)
	}
	if f.Date == nil {
		m = append(m, FieldDate)
	}
	if f.Reference == "" {
		m = append(m, FieldReference)
	}
	return m
}
