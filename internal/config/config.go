// Package config defines the top-level configuration of the marketplace
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKET_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the engine parameters and the bounds on admin changes.
type MarketConfig struct {
	Admins                 []string       `toml:"admins"`
	DefaultBiddingDuration duration       `toml:"default_bidding_duration"`
	MinBiddingDuration     duration       `toml:"min_bidding_duration"`
	MaxBiddingDuration     duration       `toml:"max_bidding_duration"`
	StaleAfter             duration       `toml:"stale_after"`
	RefundMode             string         `toml:"refund_mode"` // push or pull
	LockTTL                duration       `toml:"lock_ttl"`
	LockRetry              duration       `toml:"lock_retry"`
	SweepInterval          duration       `toml:"sweep_interval"`
	SweepBatch             int            `toml:"sweep_batch"`
	Media                  []MediumConfig `toml:"media"`
}

// MediumConfig seeds an accepted ERC-20 payment medium on first start.
type MediumConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals int32  `toml:"decimals"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Driver          string `toml:"driver"` // memory or postgres
	ClosedCacheSize int    `toml:"closed_cache_size"`
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

// RedisConfig holds Redis connection parameters. Without Redis the daemon
// runs single-instance with an in-process bus and locks.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ChainConfig selects how assets and payments move. Assets always live on
// the chain behind RPCURL.
type ChainConfig struct {
	// Payments is "custodial" (ledger wallets) or "evm" (ERC-20 over RPC,
	// native currency still custodial).
	Payments  string   `toml:"payments"`
	RPCURL    string   `toml:"rpc_url"`
	TxTimeout duration `toml:"tx_timeout"`
	// Custody is the custodial escrow account; defaults to the operator.
	Custody string `toml:"custody_address"`
}

// WalletConfig holds the operator key. Without a key the chain client is
// read-only and every asset transfer fails.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// Address names the operator when no key is configured (custodial mode).
	Address string `toml:"address"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	InsecureAuth bool     `toml:"insecure_auth"`
	AuthMaxSkew  duration `toml:"auth_max_skew"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig controls the closed-order archiver.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			DefaultBiddingDuration: duration{24 * time.Hour},
			MinBiddingDuration:     duration{time.Hour},
			MaxBiddingDuration:     duration{30 * 24 * time.Hour},
			StaleAfter:             duration{30 * 24 * time.Hour},
			RefundMode:             "push",
			LockTTL:                duration{30 * time.Second},
			LockRetry:              duration{50 * time.Millisecond},
			SweepInterval:          duration{time.Minute},
			SweepBatch:             100,
		},
		Storage: StorageConfig{
			Driver:          "postgres",
			ClosedCacheSize: 4096,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "market",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Namespace:  "market",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "market-archive",
			ForcePathStyle: true,
		},
		Chain: ChainConfig{
			Payments:  "custodial",
			RPCURL:    "http://localhost:8545",
			TxTimeout: duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			AuthMaxSkew: duration{5 * time.Minute},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_sold", "paused", "unpaused", "payout_queued"},
		},
		Archive: ArchiveConfig{
			Interval:      duration{time.Hour},
			RetentionDays: 30,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	m := c.Market
	for _, a := range m.Admins {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("market: admin %q is not an address", a))
		}
	}
	if m.MinBiddingDuration.Duration >= m.MaxBiddingDuration.Duration {
		errs = append(errs, "market: min_bidding_duration must be below max_bidding_duration")
	}
	if d := m.DefaultBiddingDuration.Duration; d <= m.MinBiddingDuration.Duration || d >= m.MaxBiddingDuration.Duration {
		errs = append(errs, "market: default_bidding_duration must lie strictly between min and max")
	}
	if m.StaleAfter.Duration <= 0 {
		errs = append(errs, "market: stale_after must be > 0")
	}
	if m.RefundMode != "push" && m.RefundMode != "pull" {
		errs = append(errs, fmt.Sprintf("market: refund_mode must be push or pull, got %q", m.RefundMode))
	}
	if m.SweepBatch < 1 {
		errs = append(errs, "market: sweep_batch must be >= 1")
	}
	for _, md := range m.Media {
		if !common.IsHexAddress(md.Address) || common.HexToAddress(md.Address) == (common.Address{}) {
			errs = append(errs, fmt.Sprintf("market: medium address %q must be a non-zero address", md.Address))
		}
		if md.Decimals < 0 || md.Decimals > 77 {
			errs = append(errs, fmt.Sprintf("market: medium %s decimals must be 0-77", md.Symbol))
		}
	}

	// Storage
	switch c.Storage.Driver {
	case "memory":
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: memory, postgres)", c.Storage.Driver))
	}
	if c.Storage.ClosedCacheSize < 0 {
		errs = append(errs, "storage: closed_cache_size must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Chain and wallet
	hasKey := c.Wallet.PrivateKey != "" || c.Wallet.EncryptedKeyPath != ""
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	switch c.Chain.Payments {
	case "custodial":
		if c.Chain.Custody != "" && !common.IsHexAddress(c.Chain.Custody) {
			errs = append(errs, "chain: custody_address is not an address")
		}
	case "evm":
		if !hasKey {
			errs = append(errs, "wallet: private_key or encrypted_key_path is required for evm payments")
		}
	default:
		errs = append(errs, fmt.Sprintf("chain: unknown payments %q (valid: custodial, evm)", c.Chain.Payments))
	}
	if !hasKey && !common.IsHexAddress(c.Wallet.Address) {
		errs = append(errs, "wallet: address or a key is required to name the operator")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Server
	if c.Mode != "worker" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
