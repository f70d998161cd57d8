// Package main is the entry point for a poller-only worker process. Several
// workers may share one database; the claim path guarantees each task runs
// on at most one of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"batchplane/internal/config"
	"batchplane/internal/engine"
	"batchplane/internal/logger"
	"batchplane/internal/runner/codeindex"
	"batchplane/internal/runner/compensation"
	"batchplane/internal/store"
	"batchplane/internal/store/postgres"
	"batchplane/internal/store/sqlite"
)

func main() {
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

	var st store.Store
	switch cfg.DatabaseDriver {
	case "postgres":
		st, err = postgres.New(ctx, cfg.DatabaseURL, log)
	case "sqlite":
		st, err = sqlite.New(ctx, cfg.DatabaseURL, log)
	default:
		err = fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	runners := engine.NewRegistry(engine.RegistryOptions{
		Strict:          cfg.StrictRegistration,
		AllowedPrefixes: cfg.AllowedPackages,
	}, log)
	runners.RegisterFactory("batchplane/internal/runner/codeindex.Runner", func() (engine.Runner, error) {
		return codeindex.NewRunner(log), nil
	})
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

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down worker")
		cancel()
	}()

	if err := eng.Run(runCtx); err != nil && err != context.Canceled {
		log.Error("engine stopped", "error", err)
		os.Exit(1)
	}
	log.Info("worker exited")
}
