// Package verifier decides whether a bank receipt proves a payment to the
// expected receiver.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/receipt"
)

var log = logrus.StandardLogger().WithField("package", "verifier")

type Status string

const (
	StatusSuccess            Status = "success"
	StatusInvalidInput       Status = "invalid_input"
	StatusServiceUnavailable Status = "service_unavailable"
	StatusParsingFailed      Status = "parsing_failed"
	StatusReceiverMismatch   Status = "receiver_mismatch"
)

var ErrInvalidInput = errors.New("invalid input")

// ExpectedIdentity is who the money must have been sent to. Empty fields are
// not checked.
type ExpectedIdentity struct {
	AccountSuffix string `json:"accountSuffix,omitempty"`
	HolderName    string `json:"holderName,omitempty"`
}

// IdentityFromAccount keeps the last four characters of a full account
// number, which is all a masked receipt shows.
func IdentityFromAccount(accountNumber, holderName string) ExpectedIdentity {
	accountNumber = strings.TrimSpace(accountNumber)
	if len(accountNumber) > 4 {
		accountNumber = accountNumber[len(accountNumber)-4:]
	}
	return ExpectedIdentity{
		AccountSuffix: accountNumber,
		HolderName:    strings.TrimSpace(holderName),
	}
}

func (i ExpectedIdentity) IsZero() bool {
	return i.AccountSuffix == "" && i.HolderName == ""
}

type Outcome struct {
	Status     Status          `json:"status"`
	Fields     *receipt.Fields `json:"fields,omitempty"`
	Message    string          `json:"message"`
	Mismatches []string        `json:"mismatches,omitempty"`
	SourceURL  string          `json:"sourceUrl,omitempty"`
	Via        portal.Strategy `json:"via,omitempty"`
}

func (o *Outcome) Verified() bool {
	return o.Status == StatusSuccess
}

type DocumentRetriever interface {
	Retrieve(ctx context.Context, key portal.LookupKey) (*portal.Document, error)
}

type ReceiptParser interface {
	Parse(pdf []byte) receipt.Fields
}

var (
	_ DocumentRetriever = (*portal.Retriever)(nil)
	_ ReceiptParser     = (*receipt.Parser)(nil)
)

// Verifier is safe for concurrent use; it keeps no per-call state.
type Verifier struct {
	retriever DocumentRetriever
	parser    ReceiptParser
}

func New(retriever DocumentRetriever, parser ReceiptParser) *Verifier {
	return &Verifier{retriever: retriever, parser: parser}
}

// Verify retrieves and parses the receipt for key and reconciles it against
// identity. An error is only returned for invalid input and retrieval
// failures; parsing and reconciliation failures are reported in the outcome.
func (v *Verifier) Verify(ctx context.Context, key portal.LookupKey, identity ExpectedIdentity) (*Outcome, error) {
	if err := key.Validate(); err != nil {
		return &Outcome{Status: StatusInvalidInput, Message: err.Error()},
			fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	doc, err := v.retriever.Retrieve(ctx, key)
	if err != nil {
		log.Warnf("receipt %s could not be retrieved: %v", key, err)
		return &Outcome{
			Status:  StatusServiceUnavailable,
			Message: "Service unavailable: unable to retrieve receipt from the bank portal, try again later",
		}, err
	}

	fields := v.parser.Parse(doc.Body)
	outcome := &Outcome{
		Fields:    &fields,
		SourceURL: doc.URL,
		Via:       doc.Via,
	}
	if !fields.Complete() {
		outcome.Status = StatusParsingFailed
		outcome.Message = fields.Error
		if outcome.Message == "" {
			outcome.Message = fmt.Sprintf("could not extract all required fields, missing: %s", strings.Join(fields.Missing, ", "))
		}
		return outcome, nil
	}

	if mismatches := Reconcile(fields, identity); len(mismatches) > 0 {
		outcome.Status = StatusReceiverMismatch
		outcome.Mismatches = mismatches
		outcome.Message = mismatchMessage(fields, identity, mismatches)
		log.Infof("receipt %s does not match receiver: %s", fields.Reference, outcome.Message)
		return outcome, nil
	}

	outcome.Status = StatusSuccess
	outcome.Message = "Payment verified"
	log.Infof("receipt %s verified, amount %s", fields.Reference, fields.Amount.Decimal.StringFixed(2))
	return outcome, nil
}

// Reconcile returns the names of configured identity fields that do not
// match the receipt.
func Reconcile(fields receipt.Fields, identity ExpectedIdentity) []string {
	var mismatches []string
	if identity.AccountSuffix != "" && !strings.EqualFold(suffix(fields.ReceiverAccount), identity.AccountSuffix) {
		mismatches = append(mismatches, receipt.FieldReceiverAccount)
	}
	if identity.HolderName != "" && strings.ToLower(fields.Receiver) != strings.ToLower(identity.HolderName) {
		mismatches = append(mismatches, receipt.FieldReceiver)
	}
	return mismatches
}

func suffix(s string) string {
	if len(s) > 4 {
		return s[len(s)-4:]
	}
	return s
}

func mismatchMessage(fields receipt.Fields, identity ExpectedIdentity, mismatches []string) string {
	parts := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		switch m {
		case receipt.FieldReceiverAccount:
			parts = append(parts, fmt.Sprintf("receiver account ends in %s, expected %s",
				suffix(fields.ReceiverAccount), identity.AccountSuffix))
		case receipt.FieldReceiver:
			parts = append(parts, fmt.Sprintf("receiver name is %q, expected %q", fields.Receiver, identity.HolderName))
		}
	}
	return "Receiver mismatch: " + strings.Join(parts, "; ")
}
