package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/beansack/internal/config"
	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	logpkg "github.com/kailas-cloud/beansack/internal/logger"
	"github.com/kailas-cloud/beansack/internal/metrics"
	schemarepo "github.com/kailas-cloud/beansack/internal/repository/schema"
	"github.com/kailas-cloud/beansack/internal/storage"
	"github.com/kailas-cloud/beansack/internal/tracing"
	chiTransport "github.com/kailas-cloud/beansack/internal/transport/chi"
	healthuc "github.com/kailas-cloud/beansack/internal/usecase/health"
	indexuc "github.com/kailas-cloud/beansack/internal/usecase/index"
	registryuc "github.com/kailas-cloud/beansack/internal/usecase/registry"
	searchuc "github.com/kailas-cloud/beansack/internal/usecase/search"
	"github.com/kailas-cloud/beansack/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting beansack index server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Env:         env,
		Export:      cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	store, err := storage.Open(cfg.Database, cfg.Storage.KeyPrefix)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterIndexMetrics()

	// Schema registry: persisted declarations first, then the built-in schema
	registry := registryuc.New(schemarepo.New(store, cfg.Storage.KeyPrefix))
	if err := registry.Load(ctx); err != nil {
		logger.Fatal("Failed to load schema", zap.Error(err))
	}
	if cfg.Index.SeedSchema {
		if err := registry.Seed(ctx, schema.Beansack()...); err != nil {
			logger.Fatal("Failed to seed schema", zap.Error(err))
		}
	}
	logger.Info("Schema loaded", zap.Strings("collections", registry.Collections()))

	indexes := indexuc.New(store, registry, logger).
		WithRunTimeout(time.Duration(cfg.Index.ReconcileTimeout) * time.Second)
	if cfg.Index.ReconcileOnStart {
		reconcileOnStart(ctx, indexes, time.Duration(cfg.Index.ReconcileTimeout)*time.Second, logger)
	}

	searchSvc := searchuc.New(store, registry, searchuc.Options{
		Weights:       criteria.Weights{Vector: cfg.Search.VectorWeight, Text: cfg.Search.TextWeight},
		MaxCandidates: cfg.Search.MaxCandidates,
	})
	healthSvc := healthuc.New(store, indexes)

	server := chiTransport.NewServer(registry, indexes, searchSvc, healthSvc, logger).
		WithSearchTimeout(time.Duration(cfg.Search.TimeoutMs) * time.Millisecond)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// reconcileOnStart creates missing indexes. Drift is reported but does not
// stop the server: search keeps working on the live indexes.
func reconcileOnStart(ctx context.Context, indexes *indexuc.Manager, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reports, err := indexes.ReconcileAll(ctx)
	for _, rep := range reports {
		logger.Info("Reconciled collection",
			zap.String("collection", rep.Collection),
			zap.Int("created", rep.Count(indexuc.Created)),
			zap.Int("unchanged", rep.Count(indexuc.Unchanged)),
			zap.Int("drifted", rep.Count(indexuc.Drifted)),
			zap.Strings("unmanaged", rep.Unmanaged),
		)
	}
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrCancelled):
		logger.Fatal("Failed to reconcile indexes", zap.Error(err))
	default:
		// drift, or an index kind this backend cannot build
		logger.Warn("Indexes not fully reconciled at startup", zap.Error(err))
	}
}
