// Package app wires configuration into the running sync engine.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/jnst/booking-sync/internal/clock"
	"github.com/jnst/booking-sync/internal/config"
	"github.com/jnst/booking-sync/internal/credentials"
	"github.com/jnst/booking-sync/internal/firestore"
	"github.com/jnst/booking-sync/internal/model"
	"github.com/jnst/booking-sync/internal/projector"
	"github.com/jnst/booking-sync/internal/repository"
	"github.com/jnst/booking-sync/internal/service"
)

// App holds the services a command runs and the connections they own.
type App struct {
	Sync    service.SyncService
	Cleanup service.CleanupService

	dbPool      *pgxpool.Pool
	redisClient rueidis.Client
}

// New builds every collaborator from cfg. A malformed service account fails here,
// before any batch runs.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	account, err := credentials.ParseServiceAccount([]byte(cfg.ServiceAccountJSON))
	if err != nil {
		return nil, err
	}

	policy, err := projector.ParseWritePolicy(cfg.PartialWritePolicy)
	if err != nil {
		return nil, err
	}

	clk := clock.System{}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokens := credentials.NewTokenManager(account, credentials.TokenManagerConfig{
		TokenURL:   cfg.TokenURL,
		Scope:      cfg.TokenScope,
		HTTPClient: httpClient,
		Clock:      clk,
		Logger:     logger,
	})

	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = account.ProjectID
	}

	store := firestore.NewClient(firestore.Config{
		BaseURL:            cfg.FirestoreBaseURL,
		ProjectID:          projectID,
		Database:           cfg.FirestoreDatabase,
		HTTPClient:         httpClient,
		BreakerMaxFailures: cfg.BreakerMaxFails,
		BreakerOpenTimeout: cfg.BreakerOpenTime,
	}, tokens)

	dbPool, err := SetupDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{dbPool: dbPool}

	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	transactionMgr := repository.NewTransactionManagerImpl(dbPool)

	deps := service.SyncServiceDeps{
		OutboxRepo: outboxRepo,
		TxManager:  transactionMgr,
		Projectors: projector.Registry{
			model.AggregateTypeBooking:     projector.NewBookingProjector(store, policy, logger),
			model.AggregateTypeChatMessage: projector.NewChatMessageProjector(store, clk, logger),
		},
		Tokens: tokens,
		Clock:  clk,
		Logger: logger,
	}

	if cfg.RedisEnabled() {
		redisClient, err := SetupRedisClient(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}

		a.redisClient = redisClient
		deps.Lock = repository.NewBatchLockImpl(redisClient, repository.DefaultBatchLockKey)
		deps.DeadLetters = repository.NewDeadLetterStreamImpl(redisClient)
	}

	a.Sync = service.NewSyncServiceImpl(deps, service.SyncOptions{
		BatchSize:   cfg.BatchSize,
		MaxRetries:  cfg.MaxRetries,
		ClaimEvents: cfg.ClaimEvents,
		ClaimLease:  cfg.ClaimLease,
		DeadLetter:  cfg.DeadLetter,
		LockTTL:     cfg.BatchLockTTL,
	})
	a.Cleanup = service.NewCleanupServiceImpl(outboxRepo, clk, cfg.CleanupRetention, logger)

	logger.Info("sync engine configured",
		slog.String("project_id", projectID),
		slog.String("partial_write_policy", string(policy)),
		slog.Bool("claim_events", cfg.ClaimEvents),
		slog.Bool("dead_letter", cfg.DeadLetter),
		slog.Bool("redis", cfg.RedisEnabled()),
	)

	return a, nil
}

// Close releases the database pool and Redis client.
func (a *App) Close() {
	if a.redisClient != nil {
		a.redisClient.Close()
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// SetupDatabase opens the outbox connection pool.
func SetupDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return dbPool, nil
}

// SetupRedisClient connects to the configured Redis address.
func SetupRedisClient(cfg *config.Config) (rueidis.Client, error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return redisClient, nil
}
