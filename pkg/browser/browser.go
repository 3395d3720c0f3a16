// Package browser drives a headless browser to coax documents out of web
// portals that do not serve them as a plain HTTP response.
//
// A Session owns one browser process. It must be closed on every path, and
// Close must be safe to call more than once.
package browser

import (
	"context"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_browser.go -package=mocks -source=browser.go Launcher,Session

// Launcher starts isolated browser sessions. Implementations may pool
// processes as long as cookies and navigation state are never shared
// between two sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is a single isolated browsing context.
type Session interface {
	// Navigate loads url. The response hook recording PDF responses is
	// installed before the navigation starts.
	Navigate(ctx context.Context, url string) error
	// InterceptedPDF returns the URL of the first response that looked like
	// a PDF, or "" when none was seen.
	InterceptedPDF() string
	// EmbeddedPDF returns the absolute URL of an embed or iframe element
	// pointing at a PDF, or "" when the page has none.
	EmbeddedPDF(ctx context.Context) (string, error)
	// CurrentURL returns the URL of the top level document.
	CurrentURL(ctx context.Context) (string, error)
	// Body returns the text content of the top level document.
	Body(ctx context.Context) (string, error)
	// Close tears down the browsing context and the browser process.
	Close() error
}

// LooksLikePDF reports whether a response with the given content type and
// URL is probably a PDF document.
func LooksLikePDF(contentType string, url string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "pdf") || strings.Contains(ct, "octet-stream") {
		return true
	}
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".pdf")
}
