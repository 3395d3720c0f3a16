package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/audit"
	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/payments"
	"github.com/edirhub/verify-backend/pkg/receipt"
	"github.com/edirhub/verify-backend/pkg/storage/model"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

// MaxUploadSize caps uploaded receipts.
const MaxUploadSize = 20 << 20

// Searcher is implemented by *audit.Indexer.
type Searcher interface {
	Search(ctx context.Context, edirSlug string, term string) ([]audit.Hit, error)
}

var _ Searcher = (*audit.Indexer)(nil)

type Server struct {
	e        *gin.Engine
	payments *payments.Service
	parser   verifier.ReceiptParser
	storage  model.Retriever
	searcher Searcher
}

type Option func(*Server)

// WithAuditStorage enables GET /api/v1/audit/:slug/:id.
func WithAuditStorage(r model.Retriever) Option {
	return func(s *Server) {
		s.storage = r
	}
}

// WithSearcher enables POST /api/v1/audit/search.
func WithSearcher(searcher Searcher) Option {
	return func(s *Server) {
		s.searcher = searcher
	}
}

var log = logrus.StandardLogger().WithField("package", "backend")

func New(svc *payments.Service, parser verifier.ReceiptParser, opts ...Option) *Server {
	s := Server{
		e:        gin.New(),
		payments: svc,
		parser:   parser,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.initRoutes()
	return &s
}

func (s *Server) Run(addr string) error {
	return s.e.Run(addr)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) initRoutes() {
	s.e.Use(gin.Logger())
	s.e.Use(gin.Recovery())
	s.e.Use(cors.Default())

	s.e.GET("/healthz", s.handleHealthz)

	g := s.e.Group("/api/v1")
	edirs := g.Group("/edirs/:slug")
	edirs.GET("/payments", s.handleListPayments)
	edirs.POST("/payments", s.handleCreatePayment)
	edirs.GET("/payments/summary", s.handleSummary)
	edirs.GET("/payments/:id", s.handleGetPayment)
	edirs.POST("/payments/:id/verify", s.handleVerify)

	g.POST("/receipts/parse", s.handleParseReceipt)
	g.GET("/audit/:slug/:id", s.handleGetAuditRecord)
	g.POST("/audit/search", s.handleSearch)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ParseResponse struct {
	Complete bool           `json:"complete"`
	Fields   receipt.Fields `json:"fields"`
}

// handleParseReceipt runs the extractor on an uploaded receipt, sent either
// as the multipart field "file" or as the raw request body.
func (s *Server) handleParseReceipt(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

	var data []byte
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		data, err = readFormFile(c, "file")
	} else {
		data, err = io.ReadAll(c.Request.Body)
	}
	if err != nil {
		log.Warnf("unable to read receipt upload: %v", err)
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty receipt"})
		return
	}

	fields := s.parser.Parse(data)
	c.JSON(http.StatusOK, ParseResponse{Complete: fields.Complete(), Fields: fields})
}

func readFormFile(c *gin.Context, name string) ([]byte, error) {
	fh, err := c.FormFile(name)
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleGetAuditRecord(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit storage is not configured"})
		return
	}
	slug := c.Param("slug")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || !models.ValidSlug(slug) {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}

	rec, err := s.storage.Retrieve(c.Request.Context(), slug, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, notFound)
			return
		}
		log.Errorf("unable to retrieve audit record %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type SearchRequest struct {
	SearchTerm string `json:"searchTerm"`
	EdirSlug   string `json:"edirSlug"`
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit search is not configured"})
		return
	}
	var searchRequest SearchRequest
	if err := c.ShouldBindJSON(&searchRequest); err != nil || strings.TrimSpace(searchRequest.SearchTerm) == "" {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}

	hits, err := s.searcher.Search(c.Request.Context(), searchRequest.EdirSlug, searchRequest.SearchTerm)
	if err != nil {
		log.Errorf("unable to perform search: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

var badRequest = gin.H{
	"error": "bad request",
}

var notFound = gin.H{
	"error": "not found",
}

var internalServerError = gin.H{
	"error": "internal server error",
}
