package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger().WithField("package", "browser")

const (
	DefaultNavigationTimeout = 20 * time.Second
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Chrome launches one headless Chrome process per session.
type Chrome struct {
	execPath          string
	userAgent         string
	navigationTimeout time.Duration
}

type Option func(*Chrome)

// WithExecPath points at a specific Chrome or Chromium binary.
func WithExecPath(path string) Option {
	return func(c *Chrome) {
		c.execPath = path
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Chrome) {
		c.userAgent = ua
	}
}

func WithNavigationTimeout(d time.Duration) Option {
	return func(c *Chrome) {
		c.navigationTimeout = d
	}
}

func NewChrome(opts ...Option) *Chrome {
	c := &Chrome{
		userAgent:         DefaultUserAgent,
		navigationTimeout: DefaultNavigationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Launcher = (*Chrome)(nil)

// Launch starts a sandbox-less headless Chrome that ignores certificate
// errors. The OS sandbox cannot be used inside most containers.
func (c *Chrome) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.IgnoreCertErrors,
		chromedp.UserAgent(c.userAgent),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:               browserCtx,
		browserCancel:     browserCancel,
		allocCancel:       allocCancel,
		navigationTimeout: c.navigationTimeout,
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("unable to start browser: %w", err)
	}
	log.Debugf("browser started")
	return s, nil
}

type chromeSession struct {
	ctx               context.Context
	browserCancel     context.CancelFunc
	allocCancel       context.CancelFunc
	navigationTimeout time.Duration

	mutex  sync.Mutex
	pdfUrl string

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*chromeSession)(nil)

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Response == nil {
			return
		}
		if !LooksLikePDF(e.Response.MimeType, e.Response.URL) {
			return
		}
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if s.pdfUrl == "" {
			s.pdfUrl = e.Response.URL
			log.Infof("PDF detected by response sniffing: %s", s.pdfUrl)
		}
	})

	navCtx, cancel := context.WithTimeout(s.ctx, s.navigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("unable to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) InterceptedPDF() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pdfUrl
}

const embeddedPdfScript = `(() => {
	const el = document.querySelector("embed[type='application/pdf'], iframe[src$='.pdf']");
	if (!el || !el.getAttribute("src")) {
		return "";
	}
	return new URL(el.getAttribute("src"), document.baseURI).href;
})()`

func (s *chromeSession) EmbeddedPDF(ctx context.Context) (string, error) {
	var src string
	if err := s.run(ctx, chromedp.Evaluate(embeddedPdfScript, &src)); err != nil {
		return "", fmt.Errorf("unable to look for embedded PDF: %w", err)
	}
	return src, nil
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("unable to get location: %w", err)
	}
	return u, nil
}

func (s *chromeSession) Body(ctx context.Context) (string, error) {
	var body string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &body))
	if err != nil {
		return "", fmt.Errorf("unable to get page content: %w", err)
	}
	return body, nil
}

// run executes actions in the browser context, aborting when ctx is done.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Close closes the browser gracefully and then releases the allocator,
// which kills the process if it is still around.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.browserCancel()
		s.allocCancel()
		if s.closeErr != nil {
			log.Warnf("error closing browser: %v", s.closeErr)
		} else {
			log.Debugf("browser closed")
		}
	})
	return s.closeErr
}
