// Package config defines the top-level configuration for the updown engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Database Postgres      `toml:"database"`
	Redis    RedisConfig   `toml:"redis"`
	Engine   EngineConfig  `toml:"engine"`
	Price    PriceConfig   `toml:"price"`
	Feed     FeedConfig    `toml:"feed"`
	Archive  ArchiveConfig `toml:"archive"`
	Notify   NotifyConfig  `toml:"notify"`
	LogLevel string        `toml:"log_level"`
}

// Postgres holds PostgreSQL connection parameters. Driver "memory" swaps the
// whole persistence layer for the in-memory store (development and tests).
type Postgres struct {
	Driver        string `toml:"driver"` // "postgres" or "memory"
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs the short-TTL
// price cache and the outbound event stream; leaving Addr empty disables both.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	EventStream string   `toml:"event_stream"`
	StreamMax   int      `toml:"stream_max_len"`
	CacheTTL    duration `toml:"cache_ttl"`
}

// EngineConfig holds the round lifecycle timing parameters.
type EngineConfig struct {
	// TickInterval is the scheduler sweep period.
	TickInterval duration `toml:"tick_interval"`
	// RoundDuration is the total length of an interval-market round.
	RoundDuration duration `toml:"round_duration"`
	// LockWindow is the tail of the round during which betting is closed.
	LockWindow duration `toml:"lock_window"`
	// DailyBettingCloseHour is the wall-clock hour betting closes for daily
	// markets (0-23, in Timezone).
	DailyBettingCloseHour int `toml:"daily_betting_close_hour"`
	// DailySettleHour is the next-day wall-clock hour daily markets settle.
	DailySettleHour int `toml:"daily_settle_hour"`
	// Timezone names the location for daily-market deadlines, e.g.
	// "Asia/Seoul". "Local" uses the host timezone.
	Timezone string `toml:"timezone"`
}

// PriceConfig holds price oracle parameters.
type PriceConfig struct {
	// RequestTimeout bounds each upstream provider call.
	RequestTimeout duration `toml:"request_timeout"`
	// MockFallback enables the deterministic pseudo-price fallback when all
	// providers and the last-known cache are exhausted. Keep it off in
	// production so price outages surface as errors instead of fake data.
	MockFallback bool `toml:"mock_fallback"`
}

// FeedConfig holds the binance websocket cache-warmer parameters.
type FeedConfig struct {
	Enabled bool     `toml:"enabled"`
	Symbols []string `toml:"symbols"`
	URL     string   `toml:"url"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`

	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15m", "10s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "15m" or "10s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration: 10-second scheduler ticks,
// 15-minute rounds with a 3-minute lock window, daily markets closing at
// 23:00 and settling at 09:00 local time.
func Defaults() Config {
	return Config{
		Database: Postgres{
			Driver:        "postgres",
			Host:          "localhost",
			Port:          5432,
			Database:      "updown",
			User:          "updown",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			EventStream: "updown:events",
			StreamMax:   10000,
			CacheTTL:    duration{5 * time.Second},
		},
		Engine: EngineConfig{
			TickInterval:          duration{10 * time.Second},
			RoundDuration:         duration{15 * time.Minute},
			LockWindow:            duration{3 * time.Minute},
			DailyBettingCloseHour: 23,
			DailySettleHour:       9,
			Timezone:              "Local",
		},
		Price: PriceConfig{
			RequestTimeout: duration{5 * time.Second},
		},
		Feed: FeedConfig{
			URL: "wss://stream.binance.com:9443",
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		LogLevel: "info",
	}
}

// Location resolves the configured timezone.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" || strings.EqualFold(e.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: load timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}

// Validate checks Config for obviously invalid or missing values and returns
// a descriptive error for the first problem found.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("config: database host or dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}

	if c.Engine.TickInterval.Duration <= 0 {
		return fmt.Errorf("config: engine tick_interval must be positive")
	}
	if c.Engine.RoundDuration.Duration <= 0 {
		return fmt.Errorf("config: engine round_duration must be positive")
	}
	if c.Engine.LockWindow.Duration <= 0 || c.Engine.LockWindow.Duration >= c.Engine.RoundDuration.Duration {
		return fmt.Errorf("config: engine lock_window must be positive and shorter than round_duration")
	}
	if h := c.Engine.DailyBettingCloseHour; h < 0 || h > 23 {
		return fmt.Errorf("config: engine daily_betting_close_hour must be 0-23")
	}
	if h := c.Engine.DailySettleHour; h < 0 || h > 23 {
		return fmt.Errorf("config: engine daily_settle_hour must be 0-23")
	}
	if _, err := c.Engine.Location(); err != nil {
		return err
	}

	if c.Price.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("config: price request_timeout must be positive")
	}

	if c.Feed.Enabled && len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("config: feed enabled but no symbols configured")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("config: archive enabled but bucket missing")
		}
		if c.Archive.Region == "" {
			return fmt.Errorf("config: archive enabled but region missing")
		}
		if c.Archive.RetentionDays <= 0 {
			return fmt.Errorf("config: archive retention_days must be positive")
		}
	}

	return nil
}
