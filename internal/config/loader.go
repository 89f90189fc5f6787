package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.Driver, "UPDOWN_DB_DRIVER")
	setStr(&cfg.Database.DSN, "UPDOWN_DB_DSN")
	setStr(&cfg.Database.Host, "UPDOWN_DB_HOST")
	setInt(&cfg.Database.Port, "UPDOWN_DB_PORT")
	setStr(&cfg.Database.Database, "UPDOWN_DB_DATABASE")
	setStr(&cfg.Database.User, "UPDOWN_DB_USER")
	setStr(&cfg.Database.Password, "UPDOWN_DB_PASSWORD")
	setStr(&cfg.Database.SSLMode, "UPDOWN_DB_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "UPDOWN_DB_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "UPDOWN_DB_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "UPDOWN_DB_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.EventStream, "UPDOWN_REDIS_EVENT_STREAM")
	setInt(&cfg.Redis.StreamMax, "UPDOWN_REDIS_STREAM_MAX_LEN")
	setDuration(&cfg.Redis.CacheTTL, "UPDOWN_REDIS_CACHE_TTL")

	// ── Engine ──
	setDuration(&cfg.Engine.TickInterval, "UPDOWN_ENGINE_TICK_INTERVAL")
	setDuration(&cfg.Engine.RoundDuration, "UPDOWN_ENGINE_ROUND_DURATION")
	setDuration(&cfg.Engine.LockWindow, "UPDOWN_ENGINE_LOCK_WINDOW")
	setInt(&cfg.Engine.DailyBettingCloseHour, "UPDOWN_ENGINE_DAILY_BETTING_CLOSE_HOUR")
	setInt(&cfg.Engine.DailySettleHour, "UPDOWN_ENGINE_DAILY_SETTLE_HOUR")
	setStr(&cfg.Engine.Timezone, "UPDOWN_ENGINE_TIMEZONE")

	// ── Price ──
	setDuration(&cfg.Price.RequestTimeout, "UPDOWN_PRICE_REQUEST_TIMEOUT")
	setBool(&cfg.Price.MockFallback, "UPDOWN_PRICE_MOCK_FALLBACK")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "UPDOWN_FEED_ENABLED")
	setStringSlice(&cfg.Feed.Symbols, "UPDOWN_FEED_SYMBOLS")
	setStr(&cfg.Feed.URL, "UPDOWN_FEED_URL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "UPDOWN_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "UPDOWN_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "UPDOWN_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Endpoint, "UPDOWN_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "UPDOWN_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "UPDOWN_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "UPDOWN_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "UPDOWN_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "UPDOWN_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "UPDOWN_ARCHIVE_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
