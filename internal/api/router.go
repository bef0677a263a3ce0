package api

import (
	"github.com/ayo6706/ledger-core/internal/api/handler"
	"github.com/ayo6706/ledger-core/internal/api/middleware"
	"github.com/ayo6706/ledger-core/internal/api/spec"
	"github.com/ayo6706/ledger-core/internal/config"
	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/idempotency"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the application services the HTTP layer delegates to.
type Services struct {
	Accounts       *service.AccountService
	Transfers      *service.TransferService
	Outbox         *service.OutboxService
	Reconciliation *service.ReconciliationService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	redis     redis.Cmdable
	services  Services
	auth      *middleware.Authenticator
	idemStore *idempotency.Store
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, redis redis.Cmdable, services Services, auth *middleware.Authenticator, idemStore *idempotency.Store) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redis,
		services:  services,
		auth:      auth,
		idemStore: idemStore,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	ownerHandler := handler.NewOwnerHandler(api.services.Accounts)
	authHandler := handler.NewAuthHandler(api.services.Accounts, api.auth)
	accountHandler := handler.NewAccountHandler(api.services.Accounts)
	transferHandler := handler.NewTransferHandler(api.services.Transfers, api.services.Accounts)
	adminHandler := handler.NewAdminHandler(api.services.Outbox, api.services.Reconciliation)

	// Operational
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/owners", ownerHandler.CreateOwner)
		r.Post("/v1/auth/token", authHandler.IssueToken)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(api.auth.Middleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Accounts
		r.Get("/v1/accounts/{id}", accountHandler.GetAccount)
		r.Get("/v1/accounts/{id}/transfers", accountHandler.ListTransfers)

		// Transfers
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/v1/transfers", transferHandler.CreateTransfer)
		r.Get("/v1/transfers/{id}", transferHandler.GetTransfer)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/v1/admin/outbox/{id}/requeue", adminHandler.RequeueOutboxEvent)
			r.Post("/v1/admin/reconciliation", adminHandler.Reconcile)
		})
	})

	return r
}
