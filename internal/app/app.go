package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/ledger-core/internal/api"
	"github.com/ayo6706/ledger-core/internal/api/middleware"
	"github.com/ayo6706/ledger-core/internal/config"
	"github.com/ayo6706/ledger-core/internal/db"
	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/idempotency"
	"github.com/ayo6706/ledger-core/internal/notify"
	"github.com/ayo6706/ledger-core/internal/observability"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/ayo6706/ledger-core/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	auth, err := middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool, cfg.LockTimeout)
	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)

	services := api.Services{
		Accounts: service.NewAccountService(store),
		Transfers: service.NewTransferService(store, service.TransferOptions{
			DefaultStrategy: cfg.DefaultTransferStrategy,
			Retry: service.RetryPolicy{
				MaxAttempts: cfg.OptimisticMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    50 * cfg.RetryBaseDelay,
			},
		}),
		Outbox: service.NewOutboxService(store, service.OutboxOptions{
			MaxAttempts: cfg.OutboxMaxAttempts,
			Backoff:     service.RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Minute},
		}),
		Reconciliation: service.NewReconciliationService(store),
	}

	notifier := notify.NewBreakerNotifier(notify.NewLogNotifier(cfg.NotificationLatency, logger), notify.DefaultBreakerSettings(), logger)
	services.Outbox.Register(domain.EventTransferNotification, service.NewNotificationService(store, notifier).HandleTransferEvent)
	services.Outbox.Register(domain.EventTransferAudit, service.NewAuditService(store).HandleTransferEvent)

	outboxWorker := worker.NewOutboxWorker(services.Outbox).
		WithPollInterval(cfg.OutboxPollInterval).
		WithBatchSize(cfg.OutboxBatchSize)
	stopOutbox := outboxWorker.Run(ctx)
	logger.Info("outbox worker started", zap.Stringer("worker", outboxWorker))

	reconWorker := worker.NewReconciliationWorker(services.Reconciliation, worker.NewRedisLocker(redisClient, cfg.ReconciliationInterval)).
		WithInterval(cfg.ReconciliationInterval)
	stopRecon := reconWorker.Run(ctx)

	stopPurge := worker.NewIdempotencyPurgeWorker(idemStore, cfg.IdempotencyTTL).Run(ctx)

	router := api.NewRouter(cfg, logger, pool, redisClient, services, auth, idemStore)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("default_strategy", string(cfg.DefaultTransferStrategy)),
		)
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopOutbox()
	stopRecon()
	stopPurge()

	logger.Info("shutdown complete")
	return runErr
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
