// Package config defines the top-level configuration for pricesync and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PRICESYNC_* environment variables.
type Config struct {
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	PriceSource PriceSourceConfig `toml:"price_source"`
	Sync        SyncConfig        `toml:"sync"`
	Storage     string            `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	S3          S3Config          `toml:"s3"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters. With Enabled false the
// rate-limit window, asset cache and update bus stay inside the process.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// PriceSourceConfig points at the upstream price API.
type PriceSourceConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// SyncConfig controls the scheduled price sync task.
type SyncConfig struct {
	Cron         string   `toml:"cron"`
	OperationKey string   `toml:"operation_key"`
	MaxRequests  int      `toml:"max_requests"`
	Window       duration `toml:"window"`
	Timeout      duration `toml:"timeout"`
	Concurrency  int      `toml:"concurrency"`
	RunOnStart   bool     `toml:"run_on_start"`
	// ExternalIDs maps symbols to price-source ids. Keys from the file are
	// merged over the defaults.
	ExternalIDs map[string]string `toml:"external_ids"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// S3Config holds S3-compatible object storage parameters for snapshots.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultExternalIDs is the built-in symbol to price-source id mapping.
func DefaultExternalIDs() map[string]string {
	return map[string]string{
		"CRV":     "ethereum:0xD533a949740bb3306d119CC777fa900bA034cd52",
		"crvUSD":  "ethereum:0xf939E0A03FB07F59A73314E73794Be0E57ac1b4E",
		"scrvUSD": "ethereum:0x0655977feb2f289a4ab78af67bab0d17aab84367",
	}
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "pricesync",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			CacheTTL:   duration{5 * time.Minute},
		},
		PriceSource: PriceSourceConfig{
			BaseURL: "https://coins.llama.fi",
			Timeout: duration{10 * time.Second},
		},
		Sync: SyncConfig{
			Cron:         "*/5 * * * *",
			OperationKey: "update_crypto_prices",
			MaxRequests:  8,
			Window:       duration{30 * time.Second},
			Timeout:      duration{2 * time.Minute},
			Concurrency:  1,
			ExternalIDs:  DefaultExternalIDs(),
		},
		Storage: "postgres",
		Server: ServerConfig{
			Enabled:           true,
			Port:              8080,
			CORSOrigins:       []string{"*"},
			RequestsPerSecond: 10,
			Burst:             20,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
			Prefix: "snapshots",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"worker": true,
	"server": true,
	"full":   true,
	"once":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for logical consistency and returns
// every problem found in a single error.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: worker, server, full, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch strings.ToLower(c.Storage) {
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.PriceSource.BaseURL == "" {
		errs = append(errs, "price_source: base_url must not be empty")
	}
	if c.PriceSource.Timeout.Duration <= 0 {
		errs = append(errs, "price_source: timeout must be > 0")
	}

	runsTask := c.Mode != "server"
	if runsTask {
		if c.Mode != "once" && strings.TrimSpace(c.Sync.Cron) == "" {
			errs = append(errs, "sync: cron must not be empty")
		}
		if c.Sync.OperationKey == "" {
			errs = append(errs, "sync: operation_key must not be empty")
		}
	}
	// Zero max_requests or window turns throttling off; negatives are typos.
	if c.Sync.MaxRequests < 0 {
		errs = append(errs, "sync: max_requests must be >= 0")
	}
	if c.Sync.Window.Duration < 0 {
		errs = append(errs, "sync: window must be >= 0")
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, "sync: concurrency must be >= 1")
	}

	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerSecond > 0 && c.Server.Burst < 1 {
			errs = append(errs, "server: burst must be >= 1 when requests_per_second is set")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			errs = append(errs, "s3: access_key and secret_key must be set together")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
