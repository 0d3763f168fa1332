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
// built-in defaults, applies DEBTBACKEND_* environment variable overrides,
// and returns the final Config. The caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEBTBACKEND_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Driver, "DEBTBACKEND_STORE_DRIVER")
	setStr(&cfg.Store.DSN, "DEBTBACKEND_STORE_DSN")
	setInt(&cfg.Store.PoolMaxConns, "DEBTBACKEND_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.PoolMinConns, "DEBTBACKEND_STORE_POOL_MIN_CONNS")
	setBool(&cfg.Store.RunMigrations, "DEBTBACKEND_STORE_RUN_MIGRATIONS")

	// ── Indexer ──
	setStr(&cfg.Indexer.URL, "DEBTBACKEND_INDEXER_URL")
	setStr(&cfg.Indexer.APIKey, "DEBTBACKEND_INDEXER_API_KEY")
	setStringSlice(&cfg.Indexer.BackupURLs, "DEBTBACKEND_INDEXER_BACKUP_URLS")

	// ── Sync ──
	setBool(&cfg.Sync.Enabled, "DEBTBACKEND_SYNC_ENABLED")
	setDuration(&cfg.Sync.Interval, "DEBTBACKEND_SYNC_INTERVAL")

	// ── Signature ──
	setStr(&cfg.Signature.Scheme, "DEBTBACKEND_SIGNATURE_SCHEME")
	setStr(&cfg.Signature.DomainName, "DEBTBACKEND_SIGNATURE_DOMAIN_NAME")
	setStr(&cfg.Signature.DomainVersion, "DEBTBACKEND_SIGNATURE_DOMAIN_VERSION")
	setInt64(&cfg.Signature.ChainID, "DEBTBACKEND_SIGNATURE_CHAIN_ID")
	setStr(&cfg.Signature.VerifyingContract, "DEBTBACKEND_SIGNATURE_VERIFYING_CONTRACT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEBTBACKEND_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEBTBACKEND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEBTBACKEND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEBTBACKEND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEBTBACKEND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEBTBACKEND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEBTBACKEND_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.TTL, "DEBTBACKEND_REDIS_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DEBTBACKEND_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "DEBTBACKEND_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "DEBTBACKEND_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "DEBTBACKEND_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "DEBTBACKEND_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "DEBTBACKEND_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "DEBTBACKEND_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "DEBTBACKEND_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "DEBTBACKEND_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "DEBTBACKEND_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "DEBTBACKEND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEBTBACKEND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEBTBACKEND_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEBTBACKEND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEBTBACKEND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEBTBACKEND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEBTBACKEND_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DEBTBACKEND_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
