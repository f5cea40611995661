// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/parts-catalog-crawler/internal/extract"
	"github.com/JakeFAU/parts-catalog-crawler/internal/navigation"
)

// AppName names the XDG directories and the env prefix.
const AppName = "partscrawler"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Selectors  SelectorsConfig  `mapstructure:"selectors"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Blob       BlobConfig       `mapstructure:"blob"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SiteConfig identifies the catalog being crawled.
type SiteConfig struct {
	RootURL   string `mapstructure:"root_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// CrawlerConfig governs the worker pool.
type CrawlerConfig struct {
	Concurrency      int     `mapstructure:"concurrency"`
	MinDelayMs       int     `mapstructure:"min_delay_ms"`
	MaxDelayMs       int     `mapstructure:"max_delay_ms"`
	RequestTimeoutMs int     `mapstructure:"request_timeout_ms"`
	SettleMs         int     `mapstructure:"settle_ms"`
	ProgressEvery    int     `mapstructure:"progress_every"`
	MaxRPS           float64 `mapstructure:"max_rps"`
}

// NavigationConfig bounds menu discovery.
type NavigationConfig struct {
	WaitMs   int `mapstructure:"wait_ms"`
	SettleMs int `mapstructure:"settle_ms"`
}

// SelectorsConfig overrides the built-in CSS selectors. Empty fields keep
// their defaults.
type SelectorsConfig struct {
	Navigation navigation.Selectors `mapstructure:"navigation"`
	Listing    extract.Selectors    `mapstructure:"listing"`
}

// FetcherConfig picks the page-fetch driver.
type FetcherConfig struct {
	Driver        string `mapstructure:"driver"`
	Headless      bool   `mapstructure:"headless"`
	ExecPath      string `mapstructure:"exec_path"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// StorageConfig selects the catalog sink.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	DataDir  string         `mapstructure:"data_dir"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// PostgresConfig controls the relational sink.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MongoConfig controls the document sink.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// BlobConfig sets where run artifacts go.
type BlobConfig struct {
	Backend         string `mapstructure:"backend"`
	BaseDir         string `mapstructure:"base_dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	Prefix          string `mapstructure:"prefix"`
	ArchivePrevious bool   `mapstructure:"archive_previous"`
}

// PubSubConfig holds metadata for changeset notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// flagKeys maps CLI flags onto config keys.
var flagKeys = map[string]string{
	"concurrency":        "crawler.concurrency",
	"min-delay-ms":       "crawler.min_delay_ms",
	"max-delay-ms":       "crawler.max_delay_ms",
	"request-timeout-ms": "crawler.request_timeout_ms",
	"port":               "server.port",
}

// DataDir is the default storage.data_dir.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ConfigDir is searched for config.yaml when no explicit path is given.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load builds a Config from defaults, an optional config file, the
// environment and any changed flags in flags, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(ConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.root_url", "https://www.gsmpartscenter.com/")
	v.SetDefault("site.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.min_delay_ms", 200)
	v.SetDefault("crawler.max_delay_ms", 500)
	v.SetDefault("crawler.request_timeout_ms", 30000)
	v.SetDefault("crawler.settle_ms", 500)
	v.SetDefault("crawler.progress_every", 10)
	v.SetDefault("crawler.max_rps", 0)
	v.SetDefault("navigation.wait_ms", 30000)
	v.SetDefault("navigation.settle_ms", 2000)
	v.SetDefault("fetcher.driver", "chromedp")
	v.SetDefault("fetcher.headless", true)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.exec_path", "")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", DataDir())
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 0)
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", AppName)
	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.base_dir", filepath.Join(DataDir(), "artifacts"))
	v.SetDefault("blob.gcs_bucket", "")
	v.SetDefault("blob.prefix", "")
	v.SetDefault("blob.archive_previous", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", AppName)
	v.SetDefault("server.port", 3100)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.RootURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("site.root_url must be an absolute URL, got %q", c.Site.RootURL)
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MinDelayMs < 0 || c.Crawler.MaxDelayMs < c.Crawler.MinDelayMs {
		return fmt.Errorf("crawler delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.Crawler.RequestTimeoutMs <= 0 {
		return fmt.Errorf("crawler.request_timeout_ms must be > 0")
	}
	if c.Crawler.MaxRPS < 0 {
		return fmt.Errorf("crawler.max_rps must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := c.Selectors.Listing.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("selectors.listing: %w", err)
	}
	switch c.Fetcher.Driver {
	case "chromedp", "colly":
	default:
		return fmt.Errorf("fetcher.driver must be chromedp or colly, got %q", c.Fetcher.Driver)
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the file backend")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case "mongo":
		if c.Storage.Mongo.URI == "" || c.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.uri and storage.mongo.database are required for the mongo backend")
		}
	default:
		return fmt.Errorf("storage.backend must be file, postgres or mongo, got %q", c.Storage.Backend)
	}
	switch c.Blob.Backend {
	case "local":
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("blob.backend must be local, gcs or memory, got %q", c.Blob.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

// MinDelay is the lower politeness bound.
func (c CrawlerConfig) MinDelay() time.Duration { return ms(c.MinDelayMs) }

// MaxDelay is the upper politeness bound.
func (c CrawlerConfig) MaxDelay() time.Duration { return ms(c.MaxDelayMs) }

// RequestTimeout bounds one model page fetch.
func (c CrawlerConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs) }

// Settle is the extra pause after a listing page is ready.
func (c CrawlerConfig) Settle() time.Duration { return ms(c.SettleMs) }

// Wait bounds how long the menu may take to appear.
func (c NavigationConfig) Wait() time.Duration { return ms(c.WaitMs) }

// Settle is the extra pause after the menu appears.
func (c NavigationConfig) Settle() time.Duration { return ms(c.SettleMs) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
