package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/edirhub/verify-backend/pkg/browser"
)

// DefaultSettleDelay is how long the fallback waits after navigation for the
// portal's interstitial page to trigger the receipt download.
const DefaultSettleDelay = 10 * time.Second

// Strategy records how a document was obtained.
type Strategy string

const (
	StrategyDirect      Strategy = "direct"
	StrategyIntercepted Strategy = "intercepted"
	StrategyEmbedded    Strategy = "embedded"
	StrategyCurrentPage Strategy = "current_page"
)

// Document is a retrieved receipt. ContentType and URL are diagnostic only.
type Document struct {
	Body        []byte
	ContentType string
	URL         string
	Via         Strategy
}

var ErrNoPDFDetected = errors.New("no PDF detected")

// RetrievalError is returned when neither the direct fetch nor the browser
// fallback produced a document.
type RetrievalError struct {
	URL    string
	Direct error
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("unable to retrieve receipt from %s: %v (direct fetch: %v)", e.URL, e.Err, e.Direct)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Retriever fetches receipts, first with a plain HTTP request and then, if
// that does not yield a PDF, by driving a headless browser.
type Retriever struct {
	client   *Client
	launcher browser.Launcher
	baseURL  string
	settle   time.Duration
}

type RetrieverOption func(*Retriever)

func WithBaseURL(base string) RetrieverOption {
	return func(r *Retriever) {
		r.baseURL = base
	}
}

func WithSettleDelay(d time.Duration) RetrieverOption {
	return func(r *Retriever) {
		r.settle = d
	}
}

func NewRetriever(client *Client, launcher browser.Launcher, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		client:   client,
		launcher: launcher,
		baseURL:  DefaultBaseURL,
		settle:   DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the receipt identified by key. Errors other than an
// invalid key are *RetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, key LookupKey) (*Document, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	u := key.URL(r.baseURL)

	log.Infof("attempting direct fetch: %s", u)
	doc, directErr := r.direct(ctx, u)
	if directErr == nil {
		log.Infof("direct fetch returned a PDF (%d bytes)", len(doc.Body))
		return doc, nil
	}
	log.Warnf("direct fetch failed: %v, falling back to browser", directErr)

	if ctx.Err() != nil {
		return nil, &RetrievalError{URL: u, Direct: directErr, Err: ctx.Err()}
	}

	doc, err := r.fallback(ctx, u)
	if err != nil {
		log.Errorf("browser retrieval failed: %v", err)
		return nil, &RetrievalError{URL: u, Direct: directErr, Err: err}
	}
	log.Infof("browser retrieval returned a PDF via %s (%d bytes)", doc.Via, len(doc.Body))
	return doc, nil
}

func (r *Retriever) direct(ctx context.Context, u string) (*Document, error) {
	doc, err := r.client.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	if !isPDFContentType(doc.ContentType) {
		return nil, fmt.Errorf("response is not a PDF, content type %q, body starts with %q",
			doc.ContentType, sample(doc.Body, 200))
	}
	doc.Via = StrategyDirect
	return doc, nil
}

func (r *Retriever) fallback(ctx context.Context, u string) (*Document, error) {
	s, err := r.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to launch browser: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warnf("unable to close browser session: %v", err)
		}
	}()

	log.Infof("navigating with browser to %s", u)
	if err := s.Navigate(ctx, u); err != nil {
		return nil, err
	}
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	pdfUrl, via, body, err := detect(ctx, s)
	if err != nil {
		return nil, err
	}
	if body != nil {
		log.Infof("using current page content as PDF")
		return &Document{Body: body, ContentType: "application/pdf", URL: pdfUrl, Via: via}, nil
	}

	log.Infof("fetching PDF from browser-detected URL %s", pdfUrl)
	doc, err := r.client.Fetch(ctx, pdfUrl)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch detected PDF: %w", err)
	}
	doc.Via = via
	return doc, nil
}

func (r *Retriever) wait(ctx context.Context) error {
	if r.settle <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// detect tries, in order: a PDF response seen during navigation, an embedded
// PDF viewer, and the current page itself. Body is only set when the page
// content already is the PDF.
func detect(ctx context.Context, s browser.Session) (string, Strategy, []byte, error) {
	if u := s.InterceptedPDF(); u != "" {
		return u, StrategyIntercepted, nil, nil
	}

	src, err := s.EmbeddedPDF(ctx)
	if err != nil {
		log.Warnf("could not look for embedded PDF: %v", err)
	} else if src != "" {
		log.Infof("PDF detected from embed/iframe: %s", src)
		return src, StrategyEmbedded, nil, nil
	}

	current, err := s.CurrentURL(ctx)
	if err != nil {
		return "", "", nil, err
	}
	if hasPDFSuffix(current) {
		log.Infof("current page URL seems to be a PDF: %s", current)
		return current, StrategyCurrentPage, nil, nil
	}

	body, err := s.Body(ctx)
	if err != nil {
		log.Warnf("could not get page content: %v", err)
	} else if trimmed := strings.TrimSpace(body); strings.HasPrefix(trimmed, "%PDF-") {
		return current, StrategyCurrentPage, []byte(trimmed), nil
	}

	log.Errorf("no PDF detected, final URL %s, content starts with %q", current, sample([]byte(body), 500))
	return "", "", nil, ErrNoPDFDetected
}

func isPDFContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "application/pdf") || strings.Contains(ct, "application/octet-stream")
}

func hasPDFSuffix(u string) bool {
	p, err := url.Parse(u)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(p.Path), ".pdf")
}

func sample(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
