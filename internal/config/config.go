// Package config defines the top-level configuration for the debt-purchasing
// backend and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEBTBACKEND_* environment
// variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Sync      SyncConfig      `toml:"sync"`
	Signature SignatureConfig `toml:"signature"`
	Redis     RedisConfig     `toml:"redis"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig selects and parameterizes the persistence driver.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver        string `toml:"driver"`
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// IndexerConfig holds the subgraph endpoints. BackupURLs are tried, in
// order, when the primary fails.
type IndexerConfig struct {
	URL        string   `toml:"url"`
	APIKey     string   `toml:"api_key"`
	BackupURLs []string `toml:"backup_urls"`
}

// SyncConfig controls the periodic state-sync loop.
type SyncConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// SignatureConfig pins the digest scheme and EIP-712 domain of the deployed
// contract revision the backend verifies against.
type SignatureConfig struct {
	// Scheme is "typed_data" or "raw".
	Scheme            string `toml:"scheme"`
	DomainName        string `toml:"domain_name"`
	DomainVersion     string `toml:"domain_version"`
	ChainID           int64  `toml:"chain_id"`
	VerifyingContract string `toml:"verifying_contract"`
}

// RedisConfig holds health-factor cache parameters. Disabled means every
// health query recomputes.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	TTL        duration `toml:"ttl"`
}

// ArchiveConfig controls the terminal-order export to object storage.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	Interval       duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Driver:        "postgres",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Indexer: IndexerConfig{},
		Sync: SyncConfig{
			Enabled:  true,
			Interval: duration{5 * time.Minute},
		},
		Signature: SignatureConfig{
			Scheme:        "typed_data",
			DomainName:    "DebtPurchasing",
			DomainVersion: "1",
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			TTL:        duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
			RetentionDays:  90,
			Interval:       duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"order_executed", "order_cancelled", "sync_failed"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSchemes enumerates the accepted signature digest schemes.
var validSchemes = map[string]bool{
	"typed_data": true,
	"raw":        true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, "store: dsn is required for the postgres driver")
		}
		if c.Store.PoolMaxConns < 1 {
			errs = append(errs, "store: pool_max_conns must be >= 1")
		}
		if c.Store.PoolMinConns < 0 {
			errs = append(errs, "store: pool_min_conns must be >= 0")
		}
		if c.Store.PoolMinConns > c.Store.PoolMaxConns {
			errs = append(errs, "store: pool_min_conns must not exceed pool_max_conns")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, memory)", c.Store.Driver))
	}

	// Indexer
	if c.Indexer.URL == "" {
		errs = append(errs, "indexer: url must not be empty")
	} else if !validHTTPURL(c.Indexer.URL) {
		errs = append(errs, fmt.Sprintf("indexer: url %q is not a valid http(s) URL", c.Indexer.URL))
	}
	for i, u := range c.Indexer.BackupURLs {
		if !validHTTPURL(u) {
			errs = append(errs, fmt.Sprintf("indexer: backup_urls[%d] %q is not a valid http(s) URL", i, u))
		}
	}

	// Sync
	if c.Sync.Enabled && c.Sync.Interval.Duration <= 0 {
		errs = append(errs, "sync: interval must be positive when sync is enabled")
	}

	// Signature
	if !validSchemes[c.Signature.Scheme] {
		errs = append(errs, fmt.Sprintf("signature: unknown scheme %q (valid: typed_data, raw)", c.Signature.Scheme))
	}
	if c.Signature.DomainName == "" {
		errs = append(errs, "signature: domain_name must not be empty")
	}
	if c.Signature.DomainVersion == "" {
		errs = append(errs, "signature: domain_version must not be empty")
	}
	if c.Signature.ChainID <= 0 {
		errs = append(errs, "signature: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Signature.VerifyingContract) {
		errs = append(errs, fmt.Sprintf("signature: verifying_contract %q is not a valid address", c.Signature.VerifyingContract))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.TTL.Duration <= 0 {
			errs = append(errs, "redis: ttl must be positive when enabled")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive when enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validHTTPURL reports whether s parses as an absolute http(s) URL.
func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
