// Package main is the entry point for the batchplane server: admin surface,
// task engine and cron fan-out in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batchplane/internal/admin"
	"batchplane/internal/config"
	"batchplane/internal/cronfire"
	"batchplane/internal/engine"
	"batchplane/internal/logger"
	"batchplane/internal/observability"
	"batchplane/internal/runner/codeindex"
	"batchplane/internal/runner/compensation"
	"batchplane/internal/store"
	"batchplane/internal/store/postgres"
	"batchplane/internal/store/sqlite"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: batchplane.yaml in current directory)")
	flag.Parse()

	log := logger.New(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, migrateFn, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if *migrateFlag {
		log.Info("running database migrations")
		if err := migrateFn(); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations completed")
	}

	shutdownTracer, err := observability.InitTracer(ctx, "batchplane", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Observable gauge: queue depth is read only when scraped.
	meter := otel.Meter("batchplane")
	_, err = meter.Int64ObservableGauge("batchplane.queue.depth",
		metric.WithDescription("Current number of PENDING tasks"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.CountPendingTasks(ctx)
			if err != nil {
				log.Warn("failed to count queue depth", "error", err)
				return nil
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Warn("failed to register queue depth gauge", "error", err)
	}

	runners := engine.NewRegistry(engine.RegistryOptions{
		Strict:          cfg.StrictRegistration,
		AllowedPrefixes: cfg.AllowedPackages,
	}, log)
	registerFactories(runners, log)
	if err := runners.LoadMappingFile(cfg.MappingFile); err != nil {
		log.Error("failed to load runner mapping file", "error", err)
		os.Exit(1)
	}

	compensators := engine.NewCompensatorRegistry(log)
	compensators.Register(compensation.NewFileRestore(cfg.DefaultRoot, log))

	eng := engine.New(st, runners, compensators, engine.Config{
		PollInterval: cfg.PollDelay,
		Batch:        cfg.PollBatch,
		PoolSize:     cfg.PoolSize,
	}, log)

	fire := cronfire.New(st, cronfire.Config{
		Interval:     cfg.FireDelay,
		InitialDelay: cfg.FireInitialDelay,
	}, log)

	handlers := admin.New(st, runners, eng, log)
	srv := admin.NewServer(admin.ServerConfig{
		Addr:           fmt.Sprintf(":%d", cfg.HTTPPort),
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
	}, handlers, metricsHandler, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := eng.Run(runCtx); err != nil && err != context.Canceled {
			log.Error("engine stopped", "error", err)
		}
	}()
	go func() {
		if err := fire.Run(runCtx); err != nil && err != context.Canceled {
			log.Error("cron fan-out stopped", "error", err)
		}
	}()
	go func() {
		log.Info("admin surface listening", "port", cfg.HTTPPort)
		if err := srv.Run(runCtx); err != nil {
			log.Error("admin server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server forced to shut down", "error", err)
	}
	log.Info("server exited")
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func() error, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		ps, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return ps, func() error { return postgres.Migrate(ps.DB()) }, nil
	case "sqlite":
		ss, err := sqlite.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return ss, func() error { return sqlite.Migrate(ss.DB()) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// registerFactories binds the compiled-in runner constructors. The mapping
// file points type codes at these names.
func registerFactories(r *engine.Registry, log *slog.Logger) {
	r.RegisterFactory("batchplane/internal/runner/codeindex.Runner", func() (engine.Runner, error) {
		return codeindex.NewRunner(log), nil
	})
}
