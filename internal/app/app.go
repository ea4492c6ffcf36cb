// Package app assembles the widget-data pipeline from configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vjranagit/dashboard/internal/config"
	"github.com/vjranagit/dashboard/pkg/dashboard"
	"github.com/vjranagit/dashboard/pkg/influx"
	"github.com/vjranagit/dashboard/pkg/metrics"
	"github.com/vjranagit/dashboard/pkg/pipeline"
	"github.com/vjranagit/dashboard/pkg/tenant"
)

// App holds the wired components. Close releases the directory.
type App struct {
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Directory *tenant.Directory
	Resolver  *tenant.CachedResolver
	Store     *influx.Client
	Fetcher   *pipeline.Fetcher

	// Dashboard is nil when no dashboard file is configured.
	Dashboard *dashboard.Config
}

// New opens the directory, applies the seed file and builds the pipeline.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	m := metrics.New()
	reg, err := metrics.NewRegistry(m)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	dirCfg := cfg.ToDirectoryConfig()
	dirCfg.Logger = logger
	dir, err := tenant.OpenDirectory(dirCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant directory: %w", err)
	}

	a := &App{Metrics: m, Registry: reg, Directory: dir}
	if err := a.init(cfg, logger); err != nil {
		dir.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(cfg *config.Config, logger *slog.Logger) error {
	if cfg.Directory.SeedFile != "" {
		if err := a.Directory.LoadSeed(cfg.Directory.SeedFile); err != nil {
			return fmt.Errorf("failed to seed tenant directory: %w", err)
		}
	}
	a.Resolver = tenant.NewCachedResolver(a.Directory, cfg.Directory.CacheSize, cfg.Directory.CacheTTL)

	storeCfg := cfg.ToStoreConfig()
	storeCfg.Metrics = a.Metrics
	storeCfg.Logger = logger
	store, err := influx.NewClient(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to create store client: %w", err)
	}
	a.Store = store
	a.Fetcher = pipeline.NewFetcher(a.Resolver, store, a.Metrics, logger)

	if cfg.Dashboard.File != "" {
		dash, err := dashboard.Load(cfg.Dashboard.File)
		if err != nil {
			return err
		}
		a.Dashboard = dash
	}
	return nil
}

// Close closes the tenant directory.
func (a *App) Close() error {
	return a.Directory.Close()
}
