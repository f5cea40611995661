package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/classify"
	"github.com/JakeFAU/parts-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/parts-catalog-crawler/internal/config"
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/parts-catalog-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/parts-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/parts-catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/parts-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/parts-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/parts-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/parts-catalog-crawler/internal/navigation"
	"github.com/JakeFAU/parts-catalog-crawler/internal/pipeline"
	"github.com/JakeFAU/parts-catalog-crawler/internal/progress"
	"github.com/JakeFAU/parts-catalog-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/parts-catalog-crawler/internal/publisher/pubsub"
	filestore "github.com/JakeFAU/parts-catalog-crawler/internal/storage/file"
	"github.com/JakeFAU/parts-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/parts-catalog-crawler/internal/storage/local"
	memorystore "github.com/JakeFAU/parts-catalog-crawler/internal/storage/memory"
	mongostore "github.com/JakeFAU/parts-catalog-crawler/internal/storage/mongo"
	pgstore "github.com/JakeFAU/parts-catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/parts-catalog-crawler/internal/worker"
)

const flushTimeout = 10 * time.Second

func newCrawlCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one full crawl of the catalog",
		Long: `crawl discovers the navigation menu, fetches every model page with a pool of
workers, reconciles the parts against the previous snapshot and persists the
result. Per-task failures are counted, not fatal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, root)
		},
	}
	f := cmd.Flags()
	f.Int("concurrency", 0, "number of parallel workers (default 5)")
	f.Int("min-delay-ms", 0, "lower bound of the random pause before each request (default 200)")
	f.Int("max-delay-ms", 0, "upper bound of the random pause before each request (default 500)")
	f.Int("request-timeout-ms", 0, "timeout for one model page fetch (default 30000)")
	return cmd
}

func runCrawl(cmd *cobra.Command, root *rootOptions) error {
	cfg, logger, err := setup(cmd, root)
	if err != nil {
		return err
	}
	defer syncLogger(logger)
	ctx := cmd.Context()

	c, err := buildCrawl(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close(logger)

	sum, runErr := c.pipeline.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := c.hub.Close(flushCtx); err != nil {
		logger.Warn("progress flush failed", zap.Error(err))
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(flushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, c.registry); err != nil {
			logger.Warn("metrics push failed", zap.String("url", cfg.Metrics.PushgatewayURL), zap.Error(err))
		}
	}

	printSummary(cmd.OutOrStdout(), sum)
	return runErr
}

// crawlRuntime holds everything a crawl needs, plus the teardown for it.
type crawlRuntime struct {
	pipeline *pipeline.Pipeline
	hub      *progress.Hub
	registry *prometheus.Registry
	closers  []func() error
}

func (c *crawlRuntime) close(logger *zap.Logger) {
	for _, fn := range slices.Backward(c.closers) {
		if err := fn(); err != nil {
			logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
}

func buildCrawl(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *crawlRuntime, err error) {
	c := &crawlRuntime{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			c.close(logger)
		}
	}()

	driver, err := newDriver(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, driver.Close)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() error { return store.Close(context.WithoutCancel(ctx)) })

	blobs, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeBlobs != nil {
		c.closers = append(c.closers, closeBlobs)
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closePublisher != nil {
		c.closers = append(c.closers, closePublisher)
	}

	promSink, err := sinks.NewPrometheusSink(c.registry)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	progressLog := logger.Named("progress")
	c.hub = progress.NewHub(progress.Config{Logger: progressLog}, sinks.NewLogSink(progressLog), promSink)

	clock := system.New()
	deps := pipeline.Deps{
		Driver:     driver,
		Store:      store,
		Blobs:      blobs,
		Emitter:    c.hub,
		Clock:      clock,
		IDs:        uuid.New(),
		Hasher:     sha256.New(),
		Classifier: classify.New(classify.DefaultRules(), clock),
	}
	// A nil *Publisher stored in the interface would not compare equal to nil.
	if publisher != nil {
		deps.Publisher = publisher
	}
	c.pipeline, err = pipeline.New(pipelineConfig(cfg), deps, logger)
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return c, nil
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		RootURL:         cfg.Site.RootURL,
		Topic:           cfg.PubSub.Topic,
		ArchivePrevious: cfg.Blob.ArchivePrevious,
		Navigation: navigation.Config{
			Selectors: cfg.Selectors.Navigation,
			Wait:      cfg.Navigation.Wait(),
			Settle:    cfg.Navigation.Settle(),
		},
		Pool: dispatcher.Config{
			Concurrency:   cfg.Crawler.Concurrency,
			ProgressEvery: cfg.Crawler.ProgressEvery,
			MaxRPS:        cfg.Crawler.MaxRPS,
			Worker: worker.Config{
				MinDelay:       cfg.Crawler.MinDelay(),
				MaxDelay:       cfg.Crawler.MaxDelay(),
				RequestTimeout: cfg.Crawler.RequestTimeout(),
				Settle:         cfg.Crawler.Settle(),
				Selectors:      cfg.Selectors.Listing,
			},
		},
	}
}

func newDriver(cfg config.Config, logger *zap.Logger) (crawler.Driver, error) {
	switch cfg.Fetcher.Driver {
	case "colly":
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Site.UserAgent,
			RespectRobots: cfg.Fetcher.RespectRobots,
			Timeout:       cfg.Crawler.RequestTimeout(),
		}), nil
	case "chromedp":
		return headless.NewChromedp(headless.Config{
			Headless:  cfg.Fetcher.Headless,
			UserAgent: cfg.Site.UserAgent,
			ExecPath:  cfg.Fetcher.ExecPath,
		}, logger.Named("chromedp"))
	default:
		return nil, &crawler.SetupError{Component: "driver", Err: fmt.Errorf("unknown driver %q", cfg.Fetcher.Driver)}
	}
}

func newStore(ctx context.Context, cfg config.Config) (crawler.Store, error) {
	switch cfg.Storage.Backend {
	case "file":
		return filestore.New(cfg.Storage.DataDir)
	case "postgres":
		return pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.Storage.Postgres.DSN,
			MaxConns: cfg.Storage.Postgres.MaxConns,
		})
	case "mongo":
		return mongostore.New(ctx, mongostore.Config{
			URI:      cfg.Storage.Mongo.URI,
			Database: cfg.Storage.Mongo.Database,
		})
	default:
		return nil, &crawler.SetupError{Component: "store", Err: fmt.Errorf("unknown backend %q", cfg.Storage.Backend)}
	}
}

// newBlobStore returns the artifact store and, when it holds a client, its
// close function.
func newBlobStore(ctx context.Context, cfg config.Config) (crawler.BlobStore, func() error, error) {
	switch cfg.Blob.Backend {
	case "local":
		s, err := local.New(local.Config{BaseDir: cfg.Blob.BaseDir})
		if err != nil {
			return nil, nil, &crawler.SetupError{Component: "blob store", Err: err}
		}
		return s, nil, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, &crawler.SetupError{Component: "blob store", Err: fmt.Errorf("create gcs client: %w", err)}
		}
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.Blob.GCSBucket, Prefix: cfg.Blob.Prefix})
		if err != nil {
			return nil, nil, errors.Join(&crawler.SetupError{Component: "blob store", Err: err}, client.Close())
		}
		return s, client.Close, nil
	case "memory":
		return memorystore.NewBlobStore(), nil, nil
	default:
		return nil, nil, &crawler.SetupError{Component: "blob store", Err: fmt.Errorf("unknown backend %q", cfg.Blob.Backend)}
	}
}

// newPublisher returns nil when no topic is configured.
func newPublisher(ctx context.Context, cfg config.Config) (*pubsubpublisher.Publisher, func() error, error) {
	if cfg.PubSub.Topic == "" {
		return nil, nil, nil
	}
	client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, &crawler.SetupError{Component: "publisher", Err: fmt.Errorf("create pubsub client: %w", err)}
	}
	p := pubsubpublisher.New(client)
	return p, p.Close, nil
}

func printSummary(w io.Writer, sum pipeline.Summary) {
	if sum.RunID == "" {
		return
	}
	rejected := 0
	for _, n := range sum.Rejected {
		rejected += n
	}
	fmt.Fprintf(w, "run %s finished in %s\n", sum.RunID, sum.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  navigation: %d brands, %d categories, %d models\n", sum.Brands, sum.Categories, sum.Models)
	fmt.Fprintf(w, "  tasks:      %d total, %d completed, %d failed\n", sum.Tasks, sum.Completed, sum.Failed)
	fmt.Fprintf(w, "  listings:   %d raw, %d parts, %d rejected\n", sum.Raw, sum.Parts, rejected)
	fmt.Fprintf(w, "  changes:    %d added, %d removed, %d updated, %d unchanged (snapshot %d)\n",
		sum.Added, sum.Removed, sum.Updated, sum.Unchanged, sum.Snapshot)
	for _, uri := range []string{sum.ReportURI, sum.ArchiveURI, sum.DiagnosticURI} {
		if uri != "" {
			fmt.Fprintf(w, "  artifact:   %s\n", uri)
		}
	}
}
