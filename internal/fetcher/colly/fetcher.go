// Package collyfetcher implements a static page-fetch driver on gocolly. It
// does not run JavaScript, so it only suits catalogs that render server side
// and local test servers.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	// Timeout applies when a WaitCondition carries none.
	Timeout time.Duration
}

// Driver hands out sessions that share one HTTP transport.
type Driver struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Driver.
func New(cfg Config) *Driver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	return &Driver{cfg: cfg, baseCollector: c}
}

// NewSession returns a session with its own collector clone.
func (d *Driver) NewSession(context.Context) (crawler.Session, error) {
	return &session{driver: d}, nil
}

// Close implements crawler.Driver. The shared transport needs no teardown.
func (d *Driver) Close() error { return nil }

type session struct {
	driver *Driver
}

// Fetch GETs url. A static page cannot settle later, so a missing
// cond.Selector is reported right away as crawler.ErrWaitTimeout together
// with the fetched document.
func (s *session) Fetch(ctx context.Context, url string, cond crawler.WaitCondition) (crawler.Document, error) {
	var (
		doc      crawler.Document
		fetchErr error
	)
	collector := s.driver.baseCollector.Clone()
	timeout := cond.Timeout
	if timeout <= 0 {
		timeout = s.driver.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)
	configureHooks(collector, &doc, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return crawler.Document{}, err
	}
	if cond.Selector == "" {
		return doc, nil
	}
	found, err := hasSelector(doc.HTML, cond.Selector)
	if err != nil {
		return crawler.Document{}, err
	}
	if !found {
		return doc, crawler.ErrWaitTimeout
	}
	return doc, nil
}

func (s *session) Close() error { return nil }

func configureHooks(hooks collectorHooks, doc *crawler.Document, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*doc = crawler.Document{
			URL:  r.Request.URL.String(),
			HTML: append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func hasSelector(html []byte, selector string) (bool, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse page: %w", err)
	}
	return page.Find(selector).Length() > 0, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
