package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/browser"
)

var log = logrus.StandardLogger().WithField("package", "portal")

const (
	DefaultTimeout = 30 * time.Second
	acceptHeader   = "application/pdf,application/octet-stream,text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8"

	// Receipts are a few hundred KB at most.
	maxBodySize = 20 << 20
)

// Client performs plain HTTP requests against the portal, presenting itself
// as a desktop browser.
type Client struct {
	http      *http.Client
	userAgent string
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: NewInsecureTransport(),
		},
		userAgent: browser.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetHttpTransport(transport http.RoundTripper) {
	c.http.Transport = transport
}

// Fetch GETs u and returns the body. Non-2xx statuses are errors.
func (c *Client) Fetch(ctx context.Context, u string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to perform HTTP request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}
	return &Document{
		Body:        body,
		ContentType: res.Header.Get("Content-Type"),
		URL:         u,
	}, nil
}
