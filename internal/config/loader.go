package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PRICESYNC_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PRICESYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PRICESYNC_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PRICESYNC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PRICESYNC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PRICESYNC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PRICESYNC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PRICESYNC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PRICESYNC_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PRICESYNC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PRICESYNC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PRICESYNC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PRICESYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PRICESYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PRICESYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PRICESYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PRICESYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PRICESYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PRICESYNC_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "PRICESYNC_REDIS_CACHE_TTL")

	// ── Price source ──
	setStr(&cfg.PriceSource.BaseURL, "PRICESYNC_PRICE_SOURCE_BASE_URL")
	setDuration(&cfg.PriceSource.Timeout, "PRICESYNC_PRICE_SOURCE_TIMEOUT")

	// ── Sync ──
	setStr(&cfg.Sync.Cron, "PRICESYNC_SYNC_CRON")
	setStr(&cfg.Sync.OperationKey, "PRICESYNC_SYNC_OPERATION_KEY")
	setInt(&cfg.Sync.MaxRequests, "PRICESYNC_SYNC_MAX_REQUESTS")
	setDuration(&cfg.Sync.Window, "PRICESYNC_SYNC_WINDOW")
	setDuration(&cfg.Sync.Timeout, "PRICESYNC_SYNC_TIMEOUT")
	setInt(&cfg.Sync.Concurrency, "PRICESYNC_SYNC_CONCURRENCY")
	setBool(&cfg.Sync.RunOnStart, "PRICESYNC_SYNC_RUN_ON_START")
	setStringMap(&cfg.Sync.ExternalIDs, "PRICESYNC_SYNC_EXTERNAL_IDS")

	setStr(&cfg.Storage, "PRICESYNC_STORAGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PRICESYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PRICESYNC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PRICESYNC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PRICESYNC_SERVER_API_KEY")
	setFloat64(&cfg.Server.RequestsPerSecond, "PRICESYNC_SERVER_REQUESTS_PER_SECOND")
	setInt(&cfg.Server.Burst, "PRICESYNC_SERVER_BURST")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PRICESYNC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PRICESYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PRICESYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "PRICESYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PRICESYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PRICESYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PRICESYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PRICESYNC_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "PRICESYNC_S3_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "PRICESYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "PRICESYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PRICESYNC_NOTIFY_TELEGRAM_CHAT_ID")

	// ── Top-level ──
	setStr(&cfg.Mode, "PRICESYNC_MODE")
	setStr(&cfg.LogLevel, "PRICESYNC_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

// setStringMap merges "KEY=value,KEY2=value2" pairs into dst.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if ok && k != "" && val != "" {
			(*dst)[k] = val
		}
	}
}
