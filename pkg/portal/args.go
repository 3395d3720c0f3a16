package portal

import (
	"fmt"
	"time"

	"github.com/edirhub/verify-backend/pkg/browser"
)

// Args configures receipt retrieval. It is embedded in the command line
// arguments of the binaries.
type Args struct {
	PortalBaseURL     string        `arg:"--portal-base-url,env:PORTAL_BASE_URL" help:"Receipt endpoint of the bank portal"`
	PortalCAPath      string        `arg:"--portal-ca-path,env:PORTAL_CA_PATH" help:"Only trust the certificates in this PEM file instead of skipping verification"`
	PortalTimeout     time.Duration `arg:"--portal-timeout,env:PORTAL_TIMEOUT" default:"30s" help:"Timeout of the direct download"`
	SettleDelay       time.Duration `arg:"--settle-delay,env:SETTLE_DELAY" default:"10s" help:"How long the browser waits for scripts after navigation"`
	ChromePath        string        `arg:"--chrome-path,env:CHROME_PATH" help:"Chrome or Chromium binary, found in PATH when empty"`
	NavigationTimeout time.Duration `arg:"--navigation-timeout,env:NAVIGATION_TIMEOUT" default:"20s"`
}

// NewRetriever builds a Retriever backed by headless Chrome.
func (a Args) NewRetriever() (*Retriever, error) {
	clientOpts := []ClientOption{}
	if a.PortalTimeout > 0 {
		clientOpts = append(clientOpts, WithTimeout(a.PortalTimeout))
	}
	client := NewClient(clientOpts...)
	if a.PortalCAPath != "" {
		t, err := NewCATransport(a.PortalCAPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load portal CA: %w", err)
		}
		client.SetHttpTransport(t)
	}

	chromeOpts := []browser.Option{}
	if a.ChromePath != "" {
		chromeOpts = append(chromeOpts, browser.WithExecPath(a.ChromePath))
	}
	if a.NavigationTimeout > 0 {
		chromeOpts = append(chromeOpts, browser.WithNavigationTimeout(a.NavigationTimeout))
	}

	retrieverOpts := []RetrieverOption{WithSettleDelay(a.SettleDelay)}
	if a.PortalBaseURL != "" {
		retrieverOpts = append(retrieverOpts, WithBaseURL(a.PortalBaseURL))
	}
	return NewRetriever(client, browser.NewChrome(chromeOpts...), retrieverOpts...), nil
}
