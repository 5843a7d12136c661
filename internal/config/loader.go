package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) over the
// defaults, then applies environment overrides. A .env file in the working
// directory is loaded first if present. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose RWA_* variable is set. The
// unprefixed PORT, DATABASE_URL and REDIS_URL are honoured first so that
// platform-injected values work without renaming.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "RWA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RWA_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "RWA_SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "RWA_SERVER_SHUTDOWN_TIMEOUT")

	// ── Storage ──
	setStr(&cfg.Database.URL, "RWA_DATABASE_URL")
	setBool(&cfg.Database.RunMigrations, "RWA_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Redis.URL, "RWA_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "RWA_REDIS_CACHE_TTL")

	// ── Principals ──
	setAddress(&cfg.Principals.Governance, "RWA_PRINCIPALS_GOVERNANCE")
	setAddress(&cfg.Principals.Oracle, "RWA_PRINCIPALS_ORACLE")
	setAddress(&cfg.Principals.Agent, "RWA_PRINCIPALS_AGENT")

	// ── AMM ──
	setUint16(&cfg.AMM.MaxFeeBps, "RWA_AMM_MAX_FEE_BPS")
	setUint16(&cfg.AMM.DefaultFeeBps, "RWA_AMM_DEFAULT_FEE_BPS")
	setInt(&cfg.AMM.MaxHops, "RWA_AMM_MAX_HOPS")

	setDuration(&cfg.Automation.DailyWindow, "RWA_AUTOMATION_DAILY_WINDOW")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "RWA_FEED_ENABLED")
	setDuration(&cfg.Feed.Interval, "RWA_FEED_INTERVAL")
	setInt(&cfg.Feed.Concurrency, "RWA_FEED_CONCURRENCY")
	setDuration(&cfg.Feed.Timeout, "RWA_FEED_TIMEOUT")
	setInt(&cfg.Feed.RetryCount, "RWA_FEED_RETRY_COUNT")
	setDuration(&cfg.Feed.RetryWait, "RWA_FEED_RETRY_WAIT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "RWA_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "RWA_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "RWA_ARCHIVE_PREFIX")
	setStr(&cfg.Archive.Endpoint, "RWA_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "RWA_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "RWA_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "RWA_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "RWA_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "RWA_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "RWA_ARCHIVE_FORCE_PATH_STYLE")

	setStr(&cfg.LogLevel, "RWA_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint16(dst *uint16, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			*dst = uint16(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setAddress(dst *common.Address, key string) {
	if v := os.Getenv(key); common.IsHexAddress(v) {
		*dst = common.HexToAddress(v)
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
