package backend

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

// VerifyRequest carries either the full receipt URL or the reference and
// account suffix. The full URL takes precedence when both are sent.
type VerifyRequest struct {
	FullCbeURL      string `json:"full_cbe_url"`
	ReferenceIDPart string `json:"reference_id_part"`
	AccountSuffix   string `json:"account_suffix"`
}

func (r VerifyRequest) key() (portal.LookupKey, bool) {
	if u := strings.TrimSpace(r.FullCbeURL); u != "" {
		return portal.KeyFromURL(u), true
	}
	key := portal.KeyFromReference(r.ReferenceIDPart, r.AccountSuffix)
	if key.ReferenceID == "" || key.AccountSuffix == "" {
		return portal.LookupKey{}, false
	}
	return key, true
}

type VerifyResponse struct {
	Status    string         `json:"status"`
	ErrorType string         `json:"error_type,omitempty"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message"`
	Details   *VerifyDetails `json:"details,omitempty"`
}

type VerifyDetails struct {
	Payer           string          `json:"payer"`
	PayerAccount    string          `json:"payer_account"`
	Receiver        string          `json:"receiver"`
	ReceiverAccount string          `json:"receiver_account"`
	Amount          decimal.Decimal `json:"amount"`
	Date            *time.Time      `json:"date"`
	Reference       string          `json:"reference"`
}

const (
	errorTypeMissingInput       = "missing_input"
	errorTypeInvalidInput       = "invalid_input"
	errorTypeParsing            = "parsing_error"
	errorTypeReceiverMismatch   = "receiver_mismatch"
	errorTypeServiceUnavailable = "service_unavailable"
	errorTypeInternal           = "internal_server_error"
)

func (s *Server) handleVerify(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("unable to decode verify request: %v", err)
	}
	key, ok := req.key()
	if !ok {
		c.JSON(http.StatusBadRequest, VerifyResponse{
			Status:    "failed",
			ErrorType: errorTypeMissingInput,
			Error:     "Required parameters missing. Provide either a non-empty 'full_cbe_url' or both non-empty 'reference_id_part' and 'account_suffix'.",
			Message:   "Invalid input parameters for verification.",
		})
		return
	}

	slug := c.Param("slug")
	outcome, p, err := s.payments.VerifyPayment(c.Request.Context(), slug, id, key)
	switch {
	case errors.Is(err, payments.ErrNotFound):
		c.JSON(http.StatusNotFound, notFound)
		return
	case errors.Is(err, payments.ErrWrongEdir):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment does not belong to this edir"})
		return
	case errors.Is(err, verifier.ErrInvalidInput):
		log.Warnf("invalid arguments for verification of payment %s (edir %s): %v", id, slug, err)
		c.JSON(http.StatusBadRequest, VerifyResponse{
			Status:    "failed",
			ErrorType: errorTypeInvalidInput,
			Error:     err.Error(),
			Message:   "Invalid input parameters for verification.",
		})
		return
	case outcome != nil && outcome.Status == verifier.StatusServiceUnavailable:
		log.Warnf("receipt retrieval failed for payment %s (edir %s): %v", id, slug, err)
		c.JSON(http.StatusServiceUnavailable, VerifyResponse{
			Status:    "error",
			ErrorType: errorTypeServiceUnavailable,
			Error:     "Verification service temporarily unavailable. Could not retrieve document.",
			Message:   "Please try again later. The payment status remains unchanged.",
		})
		return
	case err != nil:
		log.Errorf("unexpected error during verification of payment %s (edir %s): %v", id, slug, err)
		c.JSON(http.StatusInternalServerError, VerifyResponse{
			Status:    "error",
			ErrorType: errorTypeInternal,
			Error:     "An unexpected internal error occurred during verification.",
			Message:   "Please try again later or contact support. The payment status remains unchanged.",
		})
		return
	}

	switch outcome.Status {
	case verifier.StatusParsingFailed:
		c.JSON(http.StatusOK, VerifyResponse{
			Status:    "failed",
			ErrorType: errorTypeParsing,
			Error:     p.VerificationError,
			Message:   "Payment verification failed. Could not process receipt details.",
		})
	case verifier.StatusReceiverMismatch:
		c.JSON(http.StatusOK, VerifyResponse{
			Status:    "failed",
			ErrorType: errorTypeReceiverMismatch,
			Error:     p.VerificationError,
			Message:   "Payment verification failed due to receiver details mismatch.",
		})
	default:
		details := &VerifyDetails{
			Payer:        p.PayerName,
			PayerAccount: p.PayerAccount,
			Amount:       p.Amount,
			Date:         p.TransactionDate,
			Reference:    p.TransactionReference,
		}
		if outcome.Fields != nil {
			details.Receiver = outcome.Fields.Receiver
			details.ReceiverAccount = outcome.Fields.ReceiverAccount
		}
		c.JSON(http.StatusOK, VerifyResponse{
			Status:  string(models.PaymentCompleted),
			Message: "Payment verified successfully",
			Details: details,
		})
	}
}

// edir resolves the :slug parameter, writing the error response when it
// cannot.
func (s *Server) edir(c *gin.Context) (*models.Edir, bool) {
	e, err := s.payments.Repository().GetEdir(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			c.JSON(http.StatusNotFound, notFound)
			return nil, false
		}
		log.Errorf("unable to get edir %s: %v", c.Param("slug"), err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return nil, false
	}
	return e, true
}

func paymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetPayment(c *gin.Context) {
	e, ok := s.edir(c)
	if !ok {
		return
	}
	id, ok := paymentID(c)
	if !ok {
		return
	}

	p, err := s.payments.Repository().GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			c.JSON(http.StatusNotFound, notFound)
			return
		}
		log.Errorf("unable to get payment %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	if p.EdirID != e.ID {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleListPayments(c *gin.Context) {
	e, ok := s.edir(c)
	if !ok {
		return
	}
	status := models.PaymentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}

	ps, err := s.payments.Repository().ListPayments(c.Request.Context(), e.ID, status)
	if err != nil {
		log.Errorf("unable to list payments of %s: %v", e.Slug, err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	if ps == nil {
		ps = []models.Payment{}
	}
	c.JSON(http.StatusOK, ps)
}

func (s *Server) handleSummary(c *gin.Context) {
	e, ok := s.edir(c)
	if !ok {
		return
	}
	summary, err := s.payments.Repository().Summary(c.Request.Context(), e.ID)
	if err != nil {
		log.Errorf("unable to summarize payments of %s: %v", e.Slug, err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type CreatePaymentRequest struct {
	MemberName    string          `json:"memberName" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentDate   *time.Time      `json:"paymentDate"`
}

// handleCreatePayment records a pending payment for later verification.
func (s *Server) handleCreatePayment(c *gin.Context) {
	e, ok := s.edir(c)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}

	now := time.Now().UTC()
	p := &models.Payment{
		ID:            uuid.New(),
		EdirID:        e.ID,
		MemberName:    strings.TrimSpace(req.MemberName),
		Amount:        req.Amount,
		Status:        models.PaymentPending,
		PaymentMethod: req.PaymentMethod,
		PaymentDate:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = "cbe"
	}
	if req.PaymentDate != nil {
		p.PaymentDate = req.PaymentDate.UTC()
	}
	if err := s.payments.Repository().CreatePayment(c.Request.Context(), p); err != nil {
		log.Errorf("unable to create payment: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusCreated, p)
}
