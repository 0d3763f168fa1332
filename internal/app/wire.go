package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/Debt-Purchasing/debt-purchasing-backend/internal/blob/s3"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/cache/redis"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/config"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/notify"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/platform/subgraph"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/server"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/server/handler"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/service"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/sigcodec"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/store/memory"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/store/postgres"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/sync"
)

// Dependencies bundles every constructed component the application runs. It
// is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	OrderStore       domain.OrderStore
	PositionStore    domain.PositionStore
	TokenStore       domain.TokenStore
	AssetConfigStore domain.AssetConfigStore
	UserStore        domain.UserStore

	// Services
	Codec         *sigcodec.Codec
	HealthService *service.HealthService
	OrderService  *service.OrderService

	// Sync
	Indexer    *subgraph.Client
	SyncEngine *sync.Engine

	// Optional components; nil when disabled in config.
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier

	// HTTP
	Server *server.Server
}

// Wire constructs all concrete implementations from the configuration and
// returns them with a cleanup function that releases resources in reverse
// construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Persistence ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.PoolMaxConns,
			MinConns: cfg.Store.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Store.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.TokenStore = postgres.NewTokenStore(pool)
		deps.AssetConfigStore = postgres.NewAssetConfigStore(pool)
		deps.UserStore = postgres.NewUserStore(pool)
	case "memory":
		deps.OrderStore = memory.NewOrderStore()
		deps.PositionStore = memory.NewPositionStore()
		deps.TokenStore = memory.NewTokenStore()
		deps.AssetConfigStore = memory.NewAssetConfigStore()
		deps.UserStore = memory.NewUserStore()
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown store driver %q", cfg.Store.Driver)
	}

	// --- Health factor cache (optional) ---
	var hfCache domain.HealthFactorCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		hfCache = redis.NewHealthFactorCache(redisClient)
	}

	// --- Indexer client ---
	endpoints := []subgraph.Endpoint{{URL: cfg.Indexer.URL, APIKey: cfg.Indexer.APIKey}}
	for _, u := range cfg.Indexer.BackupURLs {
		endpoints = append(endpoints, subgraph.Endpoint{URL: u, APIKey: cfg.Indexer.APIKey})
	}
	deps.Indexer = subgraph.NewClient(endpoints, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Codec = sigcodec.New(
		sigcodec.Scheme(cfg.Signature.Scheme),
		cfg.Signature.DomainName,
		cfg.Signature.DomainVersion,
		cfg.Signature.ChainID,
		cfg.Signature.VerifyingContract,
	)
	deps.HealthService = service.NewHealthService(
		deps.PositionStore,
		deps.TokenStore,
		deps.AssetConfigStore,
		hfCache,
		cfg.Redis.TTL.Duration,
		logger,
	)
	deps.OrderService = service.NewOrderService(deps.OrderStore, deps.Codec, deps.HealthService, logger)

	// --- Sync engine ---
	deps.SyncEngine = sync.NewEngine(
		deps.Indexer,
		deps.OrderStore,
		deps.PositionStore,
		deps.TokenStore,
		deps.AssetConfigStore,
		deps.UserStore,
		deps.Notifier,
		logger,
	)

	// --- Archiver (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			deps.OrderStore,
			s3blob.NewWriter(s3Client),
			cfg.Archive.RetentionDays,
			logger,
		)
	}

	// --- HTTP server ---
	deps.Server = server.NewServer(
		server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(logger),
			Orders:    handler.NewOrderHandler(deps.OrderService, logger),
			Positions: handler.NewPositionHandler(deps.HealthService, logger),
			Sync:      handler.NewSyncHandler(deps.SyncEngine, logger),
		},
		logger,
	)

	return deps, cleanup, nil
}
