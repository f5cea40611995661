// Package headless renders catalog pages in headless Chrome via chromedp.
// The menu and product grids are filled in by AJAX, so a static fetch is not
// enough against the live site.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// DefaultUserAgent is a desktop Chrome UA.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// AcceptLanguage is sent with every request of a session.
const AcceptLanguage = "en-US,en;q=0.9"

// stealthScript hides the automation flag before any page script runs.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => false });`

// Config controls the browser.
type Config struct {
	Headless  bool
	UserAgent string
	// ExecPath overrides Chrome discovery.
	ExecPath       string
	ViewportWidth  int64
	ViewportHeight int64
	// DumpTimeout bounds reading the page after a wait condition timed out.
	DumpTimeout time.Duration
}

// Driver owns one browser process; each session is a tab.
type Driver struct {
	cfg             Config
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
}

// NewChromedp launches the browser. A launch failure is a *crawler.SetupError.
func NewChromedp(cfg Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, &crawler.SetupError{Component: "browser", Err: fmt.Errorf("chromedp warmup: %w", err)}
	}
	logger.Debug("browser launched", zap.Bool("headless", cfg.Headless))
	return &Driver{
		cfg:             cfg,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1080
	}
	if cfg.DumpTimeout <= 0 {
		cfg.DumpTimeout = 5 * time.Second
	}
	return cfg
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(int(cfg.ViewportWidth), int(cfg.ViewportHeight)),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens a tab with the stealth settings applied.
func (d *Driver) NewSession(ctx context.Context) (crawler.Session, error) {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(tabCtx, d.stealthAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &session{ctx: tabCtx, cancel: cancel, dumpTimeout: d.cfg.DumpTimeout}, nil
}

func (d *Driver) stealthAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		if err := emulation.SetUserAgentOverride(d.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(d.cfg.ViewportWidth, d.cfg.ViewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if err := network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": AcceptLanguage}).Do(ctx); err != nil {
			return fmt.Errorf("set headers: %w", err)
		}
		return nil
	})
}

// Close shuts the browser down.
func (d *Driver) Close() error {
	d.browserCancel()
	d.allocatorCancel()
	return nil
}

type session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	dumpTimeout time.Duration
}

// Fetch navigates the tab and waits for cond.Selector. On a wait timeout the
// current DOM is still read and returned with crawler.ErrWaitTimeout.
func (s *session) Fetch(ctx context.Context, url string, cond crawler.WaitCondition) (crawler.Document, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if cond.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, cond.Timeout)
		defer cancelTimeout()
	}

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return crawler.Document{}, fmt.Errorf("navigate: %w", err)
	}

	selector := cond.Selector
	if selector == "" {
		selector = "body"
	}
	if err := chromedp.Run(runCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
			return crawler.Document{}, fmt.Errorf("wait for %q: %w", selector, err)
		}
		doc, dumpErr := s.read(s.ctx, url, s.dumpTimeout)
		if dumpErr != nil {
			return crawler.Document{}, errors.Join(crawler.ErrWaitTimeout, dumpErr)
		}
		return doc, crawler.ErrWaitTimeout
	}
	if cond.Settle > 0 {
		if err := chromedp.Run(runCtx, chromedp.Sleep(cond.Settle)); err != nil {
			return crawler.Document{}, fmt.Errorf("settle: %w", err)
		}
	}
	return s.read(runCtx, url, 0)
}

func (s *session) read(ctx context.Context, url string, timeout time.Duration) (crawler.Document, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var html, location string
	if err := chromedp.Run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return crawler.Document{}, fmt.Errorf("read page: %w", err)
	}
	if location == "" {
		location = url
	}
	return crawler.Document{URL: location, HTML: []byte(html)}, nil
}

func (s *session) Close() error {
	s.cancel()
	return nil
}

// forwardCancel cancels when parent is done, until the returned stop is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
