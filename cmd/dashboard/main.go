package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/dashboard/internal/app"
	"github.com/vjranagit/dashboard/internal/config"
	"github.com/vjranagit/dashboard/pkg/api"
)

const (
	version = "0.3.0"

	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listenAddr  string
		logLevel    string
		validate    bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("dashboard", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("DASHBOARD_CONFIG"), "YAML configuration file (env: DASHBOARD_CONFIG)")
	flagSet.StringVar(&listenAddr, "listen", "", "override the listen address")
	flagSet.StringVar(&logLevel, "log-level", "", "override the log level: debug, info, warn, error")
	flagSet.BoolVar(&validate, "validate", false, "validate configuration and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("dashboard v%s\n", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if validate {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := cfg.Log.NewLogger(os.Stderr, "dashboard").With("version", version)
	logger.Info("configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"store_url", cfg.Store.URL,
		"directory", cfg.Directory.Path,
		"in_memory", cfg.Directory.InMemory,
		"dashboard", cfg.Dashboard.File)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(cfg.Server.ListenAddr, a.Fetcher, api.Options{
		Timeout:     cfg.Server.Timeout,
		Gatherer:    a.Registry,
		Dashboard:   a.Dashboard,
		AllowOrigin: cfg.Server.AllowOrigin,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API server listening", "addr", cfg.Server.ListenAddr)
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	st := a.Resolver.Stats()
	logger.Info("server stopped", "cache_hits", st.Hits, "cache_misses", st.Misses)
	return nil
}
