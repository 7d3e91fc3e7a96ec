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
// built-in defaults, applies MARKET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from MARKET_* variables that are
// set and non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStringSlice(&cfg.Market.Admins, "MARKET_MARKET_ADMINS")
	setDuration(&cfg.Market.DefaultBiddingDuration, "MARKET_MARKET_DEFAULT_BIDDING_DURATION")
	setDuration(&cfg.Market.MinBiddingDuration, "MARKET_MARKET_MIN_BIDDING_DURATION")
	setDuration(&cfg.Market.MaxBiddingDuration, "MARKET_MARKET_MAX_BIDDING_DURATION")
	setDuration(&cfg.Market.StaleAfter, "MARKET_MARKET_STALE_AFTER")
	setStr(&cfg.Market.RefundMode, "MARKET_MARKET_REFUND_MODE")
	setDuration(&cfg.Market.SweepInterval, "MARKET_MARKET_SWEEP_INTERVAL")
	setInt(&cfg.Market.SweepBatch, "MARKET_MARKET_SWEEP_BATCH")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "MARKET_STORAGE_DRIVER")
	setInt(&cfg.Storage.ClosedCacheSize, "MARKET_STORAGE_CLOSED_CACHE_SIZE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "MARKET_REDIS_NAMESPACE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKET_S3_FORCE_PATH_STYLE")

	// ── Chain ──
	setStr(&cfg.Chain.Payments, "MARKET_CHAIN_PAYMENTS")
	setStr(&cfg.Chain.RPCURL, "MARKET_CHAIN_RPC_URL")
	setDuration(&cfg.Chain.TxTimeout, "MARKET_CHAIN_TX_TIMEOUT")
	setStr(&cfg.Chain.Custody, "MARKET_CHAIN_CUSTODY_ADDRESS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MARKET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARKET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARKET_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.Address, "MARKET_WALLET_ADDRESS")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKET_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.InsecureAuth, "MARKET_SERVER_INSECURE_AUTH")
	setDuration(&cfg.Server.AuthMaxSkew, "MARKET_SERVER_AUTH_MAX_SKEW")
	setInt(&cfg.Server.RateLimit, "MARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MARKET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKET_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MARKET_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "MARKET_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKET_MODE")
	setStr(&cfg.LogLevel, "MARKET_LOG_LEVEL")
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
