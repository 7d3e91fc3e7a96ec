package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/escrowmarket/internal/blob/s3"
	"github.com/alanyoungcy/escrowmarket/internal/cache/redis"
	"github.com/alanyoungcy/escrowmarket/internal/chain/evm"
	"github.com/alanyoungcy/escrowmarket/internal/config"
	"github.com/alanyoungcy/escrowmarket/internal/crypto"
	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/events"
	"github.com/alanyoungcy/escrowmarket/internal/market"
	"github.com/alanyoungcy/escrowmarket/internal/notify"
	"github.com/alanyoungcy/escrowmarket/internal/payment"
	"github.com/alanyoungcy/escrowmarket/internal/server/handler"
	"github.com/alanyoungcy/escrowmarket/internal/store/cached"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
	"github.com/alanyoungcy/escrowmarket/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Orders   domain.OrderStore
	Bids     domain.BidStore
	Ledger   domain.LedgerStore
	Settings domain.SettingsStore
	Audit    domain.AuditStore

	// Coordination; Locks and Limiter are nil without Redis.
	Bus     domain.SignalBus
	Locks   domain.LockManager
	Limiter domain.RateLimiter

	// Collaborators
	Assets    domain.AssetGateway
	Payments  domain.PaymentGateway
	Custodial *payment.Custodial
	Depositor handler.Depositor
	Operator  common.Address

	Notifier  *notify.Notifier
	Publisher *events.Publisher
	Engine    *market.Engine
	Archiver  domain.Archiver // nil unless archive is enabled

	// Health probes for /api/health.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete implementations from cfg and returns them with
// a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: map[string]handler.Pinger{}}

	// --- Stores ---
	var orders domain.OrderStore
	switch cfg.Storage.Driver {
	case "memory":
		db := memory.NewDB()
		orders = memory.NewOrderStore(db)
		deps.Bids = memory.NewBidStore(db)
		deps.Ledger = memory.NewLedgerStore(db)
		deps.Settings = memory.NewSettingsStore(db)
		deps.Audit = memory.NewAuditStore(db)
		logger.WarnContext(ctx, "wire: in-memory storage, state is lost on exit")
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.Checks["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		orders = postgres.NewOrderStore(pool)
		deps.Bids = postgres.NewBidStore(pool)
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Settings = postgres.NewSettingsStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}
	deps.Orders = orders
	if cfg.Storage.ClosedCacheSize > 0 {
		c, err := cached.NewOrderStore(orders, cfg.Storage.ClosedCacheSize)
		if err != nil {
			return fail(fmt.Errorf("wire: order cache: %w", err))
		}
		deps.Orders = c
	}

	// --- Redis, or in-process coordination ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient

		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	} else {
		deps.Bus = events.NewLocalBus()
		logger.InfoContext(ctx, "wire: redis disabled, using in-process bus and locks")
	}

	// --- Operator key and chain ---
	var signer *crypto.Signer
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: operator key: %w", err))
		}
		signer = crypto.NewSigner(key)
		deps.Operator = signer.Address()
	} else {
		deps.Operator = common.HexToAddress(cfg.Wallet.Address)
	}

	var optsSigner evm.OptsSigner
	if signer != nil {
		optsSigner = signer
	} else {
		logger.WarnContext(ctx, "wire: no operator key, chain client is read-only")
	}
	chain, closeChain, err := evm.Dial(ctx, cfg.Chain.RPCURL, optsSigner, cfg.Chain.TxTimeout.Duration)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, closeChain)
	deps.Assets = evm.NewAssetGateway(chain)

	custody := deps.Operator
	if cfg.Chain.Custody != "" {
		custody = common.HexToAddress(cfg.Chain.Custody)
	}
	deps.Custodial = payment.NewCustodial(deps.Ledger, custody)
	switch cfg.Chain.Payments {
	case "evm":
		// Native currency stays custodial; tokens move by allowance.
		router := payment.NewRouter(deps.Custodial, evm.NewTokenGateway(chain))
		deps.Payments = router
		deps.Depositor = router
	default:
		deps.Payments = deps.Custodial
		deps.Depositor = deps.Custodial
	}

	// --- Notifications and events ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Publisher = events.NewPublisher(deps.Bus, deps.Audit, deps.Notifier, deps.Settings, logger)
	closers = append(closers, deps.Publisher.Wait)

	// --- Engine ---
	admins := make([]common.Address, 0, len(cfg.Market.Admins))
	for _, a := range cfg.Market.Admins {
		admins = append(admins, common.HexToAddress(a))
	}
	engine, err := market.NewEngine(market.Config{
		Operator: deps.Operator,
		Admins:   admins,
		Bounds: domain.Bounds{
			MinBiddingDuration: cfg.Market.MinBiddingDuration.Duration,
			MaxBiddingDuration: cfg.Market.MaxBiddingDuration.Duration,
			StaleAfter:         cfg.Market.StaleAfter.Duration,
		},
		DefaultBiddingDuration: cfg.Market.DefaultBiddingDuration.Duration,
		RefundMode:             market.RefundMode(cfg.Market.RefundMode),
		LockTTL:                cfg.Market.LockTTL.Duration,
		LockRetry:              cfg.Market.LockRetry.Duration,
	}, market.Deps{
		Orders:      deps.Orders,
		Bids:        deps.Bids,
		Ledger:      deps.Ledger,
		Settings:    deps.Settings,
		Assets:      deps.Assets,
		Payments:    deps.Payments,
		Publisher:   deps.Publisher,
		LockManager: deps.Locks,
		Logger:      logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: engine: %w", err))
	}
	if err := engine.Init(ctx); err != nil {
		return fail(fmt.Errorf("wire: engine init: %w", err))
	}
	if err := seedMedia(ctx, deps.Settings, cfg.Market.Media); err != nil {
		return fail(fmt.Errorf("wire: seed media: %w", err))
	}
	deps.Engine = engine

	// --- Archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Checks["s3"] = handler.PingFunc(s3Client.Health)
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Orders,
			deps.Bids,
			deps.Audit,
			logger,
		)
	}

	return deps, cleanup, nil
}

// seedMedia registers configured ERC-20 media that are not in the registry
// yet. Existing entries keep whatever an admin has set since.
func seedMedia(ctx context.Context, settings domain.SettingsStore, media []config.MediumConfig) error {
	for _, mc := range media {
		addr := common.HexToAddress(mc.Address)
		_, err := settings.GetMedium(ctx, addr)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		m := domain.Medium{Address: addr, Symbol: strings.ToUpper(mc.Symbol), Decimals: mc.Decimals, Enabled: true}
		if err := settings.UpsertMedium(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
