package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/beansack/internal/config"
	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	logpkg "github.com/kailas-cloud/beansack/internal/logger"
	schemarepo "github.com/kailas-cloud/beansack/internal/repository/schema"
	"github.com/kailas-cloud/beansack/internal/storage"
	indexuc "github.com/kailas-cloud/beansack/internal/usecase/index"
	registryuc "github.com/kailas-cloud/beansack/internal/usecase/registry"
	searchuc "github.com/kailas-cloud/beansack/internal/usecase/search"
	"github.com/kailas-cloud/beansack/internal/version"
)

var (
	env        string
	outputJSON bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "beansackctl",
	Short: "Manage beansack index declarations and live indexes",
	Long: `A command-line interface for reconciling the declared beans and concepts
indexes with the store, inspecting drift, and running searches.`,
	SilenceUsage: true,
	Version:      version.String(),
}

// app holds the services a command runs against.
type app struct {
	store    db.Store
	registry *registryuc.Registry
	indexes  *indexuc.Manager
	search   *searchuc.Service
	logger   *zap.Logger
}

func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// openApp loads the configuration for env and wires the services.
// The built-in schema is seeded when the configuration asks for it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, "warn")
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := storage.Open(cfg.Database, cfg.Storage.KeyPrefix)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	registry := registryuc.New(schemarepo.New(store, cfg.Storage.KeyPrefix))
	if err := registry.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Index.SeedSchema {
		if err := registry.Seed(ctx, schema.Beansack()...); err != nil {
			store.Close()
			return nil, err
		}
	}

	indexes := indexuc.New(store, registry, logger).
		WithRunTimeout(time.Duration(cfg.Index.ReconcileTimeout) * time.Second)

	return &app{
		store:    store,
		registry: registry,
		indexes:  indexes,
		search: searchuc.New(store, registry, searchuc.Options{
			Weights:       criteria.Weights{Vector: cfg.Search.VectorWeight, Text: cfg.Search.TextWeight},
			MaxCandidates: cfg.Search.MaxCandidates,
		}),
		logger: logger,
	}, nil
}

// withApp runs fn against a freshly wired app bounded by --timeout.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "configuration environment (config/{env}.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "overall command timeout")

	rootCmd.AddCommand(reconcileCmd, describeCmd, dropCmd, retireCmd, searchCmd, relatedCmd, beansCmd, putCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
