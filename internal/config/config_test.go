package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "https://www.gsmpartscenter.com/", cfg.Site.RootURL)
	require.Equal(t, 5, cfg.Crawler.Concurrency)
	require.Equal(t, 200*time.Millisecond, cfg.Crawler.MinDelay())
	require.Equal(t, 500*time.Millisecond, cfg.Crawler.MaxDelay())
	require.Equal(t, 30*time.Second, cfg.Crawler.RequestTimeout())
	require.Equal(t, 30*time.Second, cfg.Navigation.Wait())
	require.Equal(t, 2*time.Second, cfg.Navigation.Settle())
	require.Equal(t, "chromedp", cfg.Fetcher.Driver)
	require.True(t, cfg.Fetcher.Headless)
	require.Equal(t, "file", cfg.Storage.Backend)
	require.NotEmpty(t, cfg.Storage.DataDir)
	require.Equal(t, "local", cfg.Blob.Backend)
	require.True(t, cfg.Blob.ArchivePrevious)
	require.Equal(t, 3100, cfg.Server.Port)
}

func TestLoadWithFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
site:
  root_url: https://parts.example.com/
crawler:
  concurrency: 8
  min_delay_ms: 100
  max_delay_ms: 900
  max_rps: 2.5
selectors:
  listing:
    item: div.tile
  navigation:
    container: nav.menu
storage:
  backend: postgres
  postgres:
    dsn: postgres://localhost/catalog
blob:
  backend: memory
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	t.Setenv("PARTSCRAWLER_CRAWLER_MAX_DELAY_MS", "1200")
	t.Setenv("PARTSCRAWLER_PUBSUB_PROJECT_ID", "catalog-project")
	t.Setenv("PARTSCRAWLER_PUBSUB_TOPIC", "changesets")

	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.Int("concurrency", 5, "")
	flags.Int("request-timeout-ms", 30000, "")
	require.NoError(t, flags.Parse([]string{"--concurrency=3"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, "https://parts.example.com/", cfg.Site.RootURL)
	require.Equal(t, 3, cfg.Crawler.Concurrency, "changed flag wins")
	require.Equal(t, 30*time.Second, cfg.Crawler.RequestTimeout(), "unchanged flag keeps default")
	require.Equal(t, 1200*time.Millisecond, cfg.Crawler.MaxDelay(), "env beats file")
	require.InDelta(t, 2.5, cfg.Crawler.MaxRPS, 1e-9)
	require.Equal(t, "div.tile", cfg.Selectors.Listing.Item)
	require.Equal(t, "nav.menu", cfg.Selectors.Navigation.Container)
	require.Equal(t, "postgres://localhost/catalog", cfg.Storage.Postgres.DSN)
	require.Equal(t, "changesets", cfg.PubSub.Topic)
	require.True(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Site:    SiteConfig{RootURL: "https://parts.example.com/"},
		Crawler: CrawlerConfig{Concurrency: 1, MinDelayMs: 10, MaxDelayMs: 20, RequestTimeoutMs: 1000},
		Fetcher: FetcherConfig{Driver: "colly"},
		Storage: StorageConfig{Backend: "file", DataDir: "/tmp/catalog"},
		Blob:    BlobConfig{Backend: "memory"},
		Server:  ServerConfig{Port: 3100},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative root", func(c *Config) { c.Site.RootURL = "/catalog" }, "site.root_url"},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"negative min delay", func(c *Config) { c.Crawler.MinDelayMs = -1 }, "min_delay_ms"},
		{"inverted delays", func(c *Config) { c.Crawler.MaxDelayMs = 5 }, "max_delay_ms"},
		{"zero timeout", func(c *Config) { c.Crawler.RequestTimeoutMs = 0 }, "request_timeout_ms"},
		{"negative rps", func(c *Config) { c.Crawler.MaxRPS = -1 }, "max_rps"},
		{"bad selector", func(c *Config) { c.Selectors.Listing.Item = "div[" }, "selectors.listing"},
		{"unknown driver", func(c *Config) { c.Fetcher.Driver = "curl" }, "fetcher.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.postgres.dsn"},
		{"mongo without uri", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.mongo.uri"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend"},
		{"gcs without bucket", func(c *Config) { c.Blob.Backend = "gcs" }, "blob.gcs_bucket"},
		{"local without dir", func(c *Config) { c.Blob.Backend = "local" }, "blob.base_dir"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "changesets" }, "pubsub.project_id"},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
