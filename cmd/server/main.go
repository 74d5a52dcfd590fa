package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcaptcha/powcore/internal/challenge"
	"github.com/mcaptcha/powcore/internal/config"
	"github.com/mcaptcha/powcore/internal/master"
	"github.com/mcaptcha/powcore/internal/resource"
	"github.com/mcaptcha/powcore/internal/server"
)

// demoSiteKey is the single site this demo binary fronts.
const demoSiteKey = "demo.example.com"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Starting powcore demo server...")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger.Info("Configuration loaded",
		"host", cfg.ServerHost,
		"port", cfg.ServerPort,
		"gc_period_s", cfg.GCPeriodS,
		"visitor_lifetime_ms", cfg.VisitorLifetimeMs,
		"cache_backend", cfg.CacheBackend,
		"max_connections", cfg.MaxConnections)

	if cfg.CacheBackend == config.CacheBackendExternal {
		logger.Error("external cache backend not wired into this demo binary", "dsn", cfg.ExternalCacheDSN)
		log.Fatal("unsupported cache backend for this demo")
	}

	m := master.New(master.Config{GCPeriodS: cfg.GCPeriodS}, nil, nil, func(scanned, evicted int, dur time.Duration) {
		logger.Debug("GC sweep completed", "scanned", scanned, "evicted", evicted, "duration", dur)
	})
	m.AddSite(context.Background(), demoSiteKey, master.SiteConfig{
		Defense:           cfg.Defense,
		VisitorLifetimeMs: cfg.VisitorLifetimeMs,
		DurationS:         cfg.DurationS,
	})

	challengeStore := challenge.NewEmbedded(nil, nil)
	resourceService := resource.NewInMemoryService()

	serverConfig := server.Config{
		Host:            cfg.ServerHost,
		Port:            cfg.ServerPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxConnections:  cfg.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
		SiteKey:         demoSiteKey,
	}

	srv := server.NewServer(serverConfig, m, challengeStore, resourceService, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()

		logger.Info("Waiting for server to shut down gracefully...")
		if err := <-errChan; err != nil {
			logger.Error("Server shutdown error", "error", err)
			log.Fatal(err)
		}

	case err := <-errChan:
		cancel()
		if err != nil {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
		logger.Info("Server exited without error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	m.Close(shutdownCtx)

	logger.Info("Server stopped")
}
