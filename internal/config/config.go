// Package config defines the engine's runtime configuration and its
// validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/rwa-engine/internal/amm"
	"github.com/atmx/rwa-engine/internal/archive"
	"github.com/atmx/rwa-engine/internal/feed"
	"github.com/atmx/rwa-engine/internal/model"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by RWA_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Principals model.Principals `toml:"principals"`
	AMM        AMMConfig        `toml:"amm"`
	Automation AutomationConfig `toml:"automation"`
	Feed       FeedConfig       `toml:"feed"`
	Archive    ArchiveConfig    `toml:"archive"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// DatabaseConfig selects the PostgreSQL journal. An empty URL keeps the
// journal in memory.
type DatabaseConfig struct {
	URL           string `toml:"url"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig enables the journal read cache when URL is set.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// AMMConfig holds pool fee bounds and routing depth.
type AMMConfig struct {
	MaxFeeBps     uint16 `toml:"max_fee_bps"`
	DefaultFeeBps uint16 `toml:"default_fee_bps"`
	MaxHops       int    `toml:"max_hops"`
}

// AutomationConfig tunes delegated trading.
type AutomationConfig struct {
	DailyWindow duration `toml:"daily_window"`
}

// FeedConfig controls the off-chain price feed worker.
type FeedConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
	Timeout     duration `toml:"timeout"`
	RetryCount  int      `toml:"retry_count"`
	RetryWait   duration `toml:"retry_wait"`
}

// ArchiveConfig controls journal export to S3-compatible storage.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	Prefix         string   `toml:"prefix"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs a single in-memory node. Principals
// have no default.
func Defaults() Config {
	ammDefaults := amm.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
		},
		Database: DatabaseConfig{RunMigrations: true},
		Redis:    RedisConfig{CacheTTL: duration{30 * time.Second}},
		AMM: AMMConfig{
			MaxFeeBps:     ammDefaults.MaxFeeBps,
			DefaultFeeBps: ammDefaults.DefaultFeeBps,
			MaxHops:       ammDefaults.MaxHops,
		},
		Automation: AutomationConfig{DailyWindow: duration{24 * time.Hour}},
		Feed: FeedConfig{
			Enabled:     true,
			Interval:    duration{30 * time.Second},
			Concurrency: 4,
			Timeout:     duration{10 * time.Second},
			RetryCount:  3,
			RetryWait:   duration{500 * time.Millisecond},
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
			Prefix:   "events",
			Region:   "us-east-1",
			UseSSL:   true,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	if l, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// AMMOptions converts the AMM section for the engine.
func (c *Config) AMMOptions() amm.Config {
	return amm.Config{MaxFeeBps: c.AMM.MaxFeeBps, DefaultFeeBps: c.AMM.DefaultFeeBps, MaxHops: c.AMM.MaxHops}
}

// FetcherOptions converts the feed section for the HTTP fetcher.
func (c *Config) FetcherOptions() feed.FetcherConfig {
	return feed.FetcherConfig{
		Timeout:    c.Feed.Timeout.Duration,
		RetryCount: c.Feed.RetryCount,
		RetryWait:  c.Feed.RetryWait.Duration,
	}
}

// S3Options converts the archive section for the S3 writer.
func (c *Config) S3Options() archive.S3Config {
	return archive.S3Config{
		Endpoint:       c.Archive.Endpoint,
		Region:         c.Archive.Region,
		Bucket:         c.Archive.Bucket,
		AccessKey:      c.Archive.AccessKey,
		SecretKey:      c.Archive.SecretKey,
		UseSSL:         c.Archive.UseSSL,
		ForcePathStyle: c.Archive.ForcePathStyle,
	}
}

// Validate checks for invalid or missing values and returns one error
// listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		errs = append(errs, "server: request_timeout must be positive")
	}

	for role, addr := range map[string]common.Address{
		"governance": c.Principals.Governance,
		"oracle":     c.Principals.Oracle,
		"agent":      c.Principals.Agent,
	} {
		if addr == (common.Address{}) {
			errs = append(errs, fmt.Sprintf("principals: %s address must be set", role))
		}
	}

	if c.AMM.DefaultFeeBps > c.AMM.MaxFeeBps {
		errs = append(errs, fmt.Sprintf("amm: default_fee_bps %d exceeds max_fee_bps %d", c.AMM.DefaultFeeBps, c.AMM.MaxFeeBps))
	}
	if c.AMM.MaxFeeBps > 10000 {
		errs = append(errs, "amm: max_fee_bps must be <= 10000")
	}
	if c.AMM.MaxHops < 1 {
		errs = append(errs, "amm: max_hops must be >= 1")
	}

	if c.Automation.DailyWindow.Duration <= 0 {
		errs = append(errs, "automation: daily_window must be positive")
	}

	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errs = append(errs, "database: url must be a postgres:// URL")
		}
	}
	if c.Redis.URL != "" && c.Database.URL == "" {
		errs = append(errs, "redis: cache requires database.url")
	}

	if c.Feed.Enabled {
		if c.Feed.Interval.Duration <= 0 {
			errs = append(errs, "feed: interval must be positive")
		}
		if c.Feed.Concurrency < 1 {
			errs = append(errs, "feed: concurrency must be >= 1")
		}
		if c.Feed.RetryCount < 0 {
			errs = append(errs, "feed: retry_count must be >= 0")
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must be set when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must be set when enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
		if (c.Archive.AccessKey == "") != (c.Archive.SecretKey == "") {
			errs = append(errs, "archive: access_key and secret_key must be set together")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(errs, "; "))
}
