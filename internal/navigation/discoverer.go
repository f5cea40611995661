package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Config controls discovery.
type Config struct {
	Selectors Selectors
	// Wait bounds how long the menu may take to appear.
	Wait time.Duration
	// Settle is an extra pause once the menu shows up.
	Settle time.Duration
}

// Discoverer fetches the catalog root and parses its menu.
type Discoverer struct {
	cfg    Config
	logger *zap.Logger
}

// NewDiscoverer constructs a Discoverer.
func NewDiscoverer(cfg Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	if cfg.Wait <= 0 {
		cfg.Wait = 30 * time.Second
	}
	return &Discoverer{cfg: cfg, logger: logger}
}

// Discover fetches rootURL through session and returns the flattened menu.
//
// A menu that never loads, or one without a single valid brand, yields a
// *crawler.NavigationNotFoundError carrying the page for diagnosis. Transport
// failures are a *crawler.SetupError for the "root page" component.
func (d *Discoverer) Discover(ctx context.Context, session crawler.Session, rootURL string) (Result, error) {
	doc, err := session.Fetch(ctx, rootURL, crawler.WaitCondition{
		Selector: d.cfg.Selectors.Ready,
		Timeout:  d.cfg.Wait,
		Settle:   d.cfg.Settle,
	})
	if err != nil {
		if errors.Is(err, crawler.ErrWaitTimeout) {
			return Result{}, &crawler.NavigationNotFoundError{
				Reason:  "menu did not load within " + d.cfg.Wait.String(),
				Content: doc.HTML,
				Err:     err,
			}
		}
		return Result{}, &crawler.SetupError{Component: "root page", Err: fmt.Errorf("fetch root page: %w", err)}
	}
	if doc.URL == "" {
		doc.URL = rootURL
	}

	tree, err := Parse(doc, d.cfg.Selectors)
	if err != nil {
		return Result{}, &crawler.NavigationNotFoundError{Reason: "menu unreadable", Content: doc.HTML, Err: err}
	}
	if len(tree) == 0 {
		return Result{}, &crawler.NavigationNotFoundError{Reason: "zero brands after parse", Content: doc.HTML}
	}

	res := Flatten(tree)
	if res.DroppedModels > 0 {
		d.logger.Warn("skipping models with missing brand", zap.Int("count", res.DroppedModels))
	}
	d.logger.Info("navigation discovered",
		zap.Int("brands", len(res.Navigation.Brands)),
		zap.Int("categories", len(res.Navigation.Categories)),
		zap.Int("models", len(res.Navigation.Models)),
	)
	return res, nil
}
