package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giygas/healthpost-api/config"
	"github.com/giygas/healthpost-api/data"
	"github.com/giygas/healthpost-api/handlers"
	"github.com/giygas/healthpost-api/health"
	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/scheduler"
	"github.com/giygas/healthpost-api/server"
	"github.com/giygas/healthpost-api/store"
)

func main() {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logging.InitLoggerWithOptions(logging.Options{
		Dir:            cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Server stopped with error", "error", err)
		_ = logging.Close()
		os.Exit(1)
	}
}

// loadEnv reads .env from the working directory, falling back to the
// executable directory
func loadEnv() {
	if err := godotenv.Load(); err == nil {
		return
	}

	ex, err := os.Executable()
	if err != nil {
		slog.Error("Failed to get executable path", "error", err)
		os.Exit(1)
	}
	exPath := filepath.Dir(ex)
	if err := os.Chdir(exPath); err != nil {
		slog.Error("Failed to change directory", "error", err)
		os.Exit(1)
	}
	// Missing .env is fine, the environment may hold everything
	_ = godotenv.Load()
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	ds, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer ds.Close()

	svc := inventory.NewService(ds, inventory.ClockStamper{}, inventory.Options{
		Policy: inventory.ShortfallPolicy(cfg.ShortfallPolicy),
	})

	cache := data.NewLotCache(ds)
	if err := cache.Start(ctx); err != nil {
		return fmt.Errorf("start lot cache: %w", err)
	}
	defer cache.Stop()

	sched := scheduler.NewScheduler(svc, ds, cache, scheduler.Options{
		SweepTimes:   cfg.StockSweepTimes,
		ExpiryWindow: cfg.ExpiryWindow(),
		LowStock:     cfg.LowStockThreshold,
	})
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	h := handlers.NewHTTPHandler(ds, svc, cache, health.NewHealthChecker(ds, cache, sched), handlers.Options{
		ExpiryWindow:   cfg.ExpiryWindow(),
		LowStock:       cfg.LowStockThreshold,
		AllowedOrigins: cfg.CORSOrigins,
	})
	srv := server.NewServer(cfg, h)

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Start()
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case sig := <-quit:
		logging.Info("Received signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore connects the configured document store backend
func openStore(ctx context.Context, cfg *config.Config) (interfaces.DocumentStore, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		r := store.NewRedis(store.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		logging.Info("Using redis document store", "addr", cfg.RedisAddr, "prefix", cfg.RedisKeyPrefix)
		return r, nil

	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := store.NewPostgres(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logging.Info("Using postgres document store")
		return p, nil
	}

	logging.Warn("Using in-memory document store, data is lost on restart")
	return store.NewMemory(), nil
}
