package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/authz/assignments"
	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/decision"
	"github.com/meridian-erp/meridian-erp/internal/authz/effective"
	authzhttp "github.com/meridian-erp/meridian-erp/internal/authz/http"
	"github.com/meridian-erp/meridian-erp/internal/authz/permcache"
	"github.com/meridian-erp/meridian-erp/internal/authz/roles"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/users"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cat := catalog.Default()
	metrics := observability.NewMetrics()
	cacheMetrics := permcache.NewMetrics(metrics.Registerer())

	engine := effective.NewEngine(effective.NewRepository(pool))
	permCache := permcache.NewCache(permcache.NewRedisStore(redisClient), engine, cfg.PermCacheTTL, logger, cacheMetrics)
	center := decision.NewCenter(decision.DefaultNavigation(), decision.DefaultActions(), permCache, cfg.PermCacheTTL)

	coordinator := permcache.NewCoordinator(permcache.NewResolver(pool), logger, permCache, center)

	roleRepo := roles.NewRepository(pool)
	auditSink := shared.NewAuditLogger(pool, logger)

	var roleInvalidator roles.Invalidator = coordinator
	var assignInvalidator assignments.Invalidator = coordinator
	var enqueueClient *jobs.Client
	if cfg.InvalidationMode == app.InvalidationAsync {
		enqueueClient, err = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init queue client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := enqueueClient.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		enqueuer := jobs.NewEnqueuer(enqueueClient, logger)
		roleInvalidator = enqueuer
		assignInvalidator = enqueuer
	}

	roleService := roles.NewService(roleRepo, cat, auditSink, roleInvalidator, logger)
	assignService := assignments.NewService(assignments.NewRepository(pool), roleRepo, auditSink, assignInvalidator, logger)

	guard := authzhttp.Guard{Cache: permCache, Logger: logger}
	authzHandler := authzhttp.NewHandler(logger, roleService, assignService, permCache, center, cat, guard)

	usersService := users.NewService(users.NewRepository(pool))
	usersHandler := users.NewHandler(logger, usersService, guard.RequireAny)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthzHandler: authzHandler,
		UsersHandler: usersHandler,
		Guard:        guard,
		Pool:         pool,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
