package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/marketglass/marketglass/internal/blob/s3"
	"github.com/marketglass/marketglass/internal/cache/redis"
	"github.com/marketglass/marketglass/internal/config"
	"github.com/marketglass/marketglass/internal/crypto"
	"github.com/marketglass/marketglass/internal/domain"
	"github.com/marketglass/marketglass/internal/notify"
	"github.com/marketglass/marketglass/internal/platform/polymarket"
	"github.com/marketglass/marketglass/internal/server/handler"
	"github.com/marketglass/marketglass/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores (nil in monitor mode, which runs without Postgres)
	MarketStore    domain.MarketStore
	OrderStore     domain.OrderStore
	WatchlistStore domain.WatchlistStore

	// Caches
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless archiving is enabled)
	Archiver   *s3blob.Archiver
	BlobReader domain.BlobReader

	// Platform clients
	Clob  *polymarket.ClobClient
	Gamma *polymarket.GammaClient
	WS    *polymarket.WSClient

	// Signer is nil outside full mode; order placement then fails cleanly.
	Signer *crypto.Signer

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks probe the wired backends for the health endpoint.
	HealthChecks []handler.DependencyCheck
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.WatchlistStore = postgres.NewWatchlistStore(pool)
		deps.HealthChecks = append(deps.HealthChecks, handler.DependencyCheck{
			Name:  "postgres",
			Probe: pgClient.Ping,
		})
	}

	// --- Redis ---
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

	deps.HealthChecks = append(deps.HealthChecks, handler.DependencyCheck{
		Name:  "redis",
		Probe: redisClient.Ping,
	})

	deps.BookCache = redis.NewBookCache(redisClient, cfg.Book.SnapshotTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Wallet signer (full mode only; other modes are read-only) ---
	if cfg.Mode == "full" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet signer: %w", err)
		}
		deps.Signer = signer
	}

	// --- Platform clients ---
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, deps.Signer, nil)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.WS = polymarket.NewWSClient(cfg.Polymarket.WsHost)

	if deps.Signer != nil {
		// Needed for authenticated CLOB endpoints. Failure is not fatal:
		// order submission will surface the error when attempted.
		if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			logger.WarnContext(ctx, "derive clob api key failed",
				slog.String("error", err.Error()),
			)
		}
	}

	// --- S3 snapshot archive ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.HealthChecks = append(deps.HealthChecks, handler.DependencyCheck{
			Name:  "s3",
			Probe: s3Client.Health,
		})

		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), reader, deps.BookCache)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
