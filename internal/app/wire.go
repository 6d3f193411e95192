package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/predictify/engine/internal/blob/s3"
	"github.com/predictify/engine/internal/cache/redis"
	"github.com/predictify/engine/internal/config"
	"github.com/predictify/engine/internal/crypto"
	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/notify"
	"github.com/predictify/engine/internal/oracle"
	"github.com/predictify/engine/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Persistence
	PG          *postgres.Client
	Markets     domain.MarketStore
	Disputes    domain.DisputeStore
	Resolutions domain.ResolutionStore
	FeeAudit    domain.FeeAuditStore
	SysConfig   domain.SystemConfigStore
	Ledger      domain.AssetLedger

	// Redis
	Redis       *redis.Client
	MarketCache domain.MarketCache
	Locks       domain.LockManager
	Limiter     domain.RateLimiter
	Bus         *redis.EventBus

	// Price feed gateway
	Oracle domain.PriceOracle

	// Archival (nil unless S3 is enabled)
	Archiver *s3blob.Archiver

	// Notifications
	Notifier      *notify.Notifier
	NotifyEnabled bool
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Operator key (optional; admin requests can be signed elsewhere) ---
	if cfg.Operator.PrivateKey != "" || cfg.Operator.EncryptedKeyPath != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator signer: %w", err)
		}
		logger.InfoContext(ctx, "operator key loaded",
			slog.String("address", signer.Address()),
		)
	}

	// --- PostgreSQL ---
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
	deps.PG = pgClient
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Disputes = postgres.NewDisputeStore(pool)
	deps.Resolutions = postgres.NewResolutionStore(pool)
	deps.FeeAudit = postgres.NewFeeStore(pool)
	deps.SysConfig = postgres.NewConfigStore(pool)
	deps.Ledger = postgres.NewLedgerStore(pool)

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

	deps.Redis = redisClient
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient, cfg.Engine.RateLimit, cfg.Engine.RateWindow.Duration)
	deps.Bus = redis.NewEventBus(redisClient)

	// --- Price feed gateway ---
	deps.Oracle = oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.MaxAge.Duration, logger)

	// --- S3 archival ---
	if cfg.S3.Enabled {
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

		deps.Archiver = s3blob.NewArchiver(
			deps.Markets,
			deps.Disputes,
			deps.Resolutions,
			deps.FeeAudit,
			s3blob.NewWriter(s3Client),
			deps.Bus,
			logger,
			cfg.Engine.ArchiveRetention.Duration,
		)
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
	deps.NotifyEnabled = len(senders) > 0

	return deps, cleanup, nil
}
