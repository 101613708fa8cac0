package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/collector"
	"svklom_bridge/internal/config"
	"svklom_bridge/internal/httpapi"
	"svklom_bridge/internal/lom"
	"svklom_bridge/internal/poller"
	"svklom_bridge/internal/service"
	"svklom_bridge/internal/setup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting SVK LOM bridge", "config", cfg.String())

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("Failed to load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	logger.Info("Catalog loaded", "entries", cat.Len(), "enabled", len(cat.EnabledIDs()))

	// Validate the connection before starting the poll loop. The flow tells
	// an unreachable host and rejected credentials apart.
	flow := setup.New(setup.ConnectionProbe(cat, cfg.RequestTimeout, logger), logger)

	probeCtx, probeCancel := context.WithTimeout(context.Background(), 2*cfg.RequestTimeout)
	err = flow.SubmitCredentials(probeCtx, setup.Credentials{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	probeCancel()
	if err != nil {
		logger.Error("Connection validation failed", "host", cfg.Host, "error", err)
		os.Exit(1)
	}
	if err := flow.SubmitOptions(setup.Options{
		ScanInterval: cfg.ScanInterval,
		EnableWrites: cfg.EnableWrites,
	}); err != nil {
		logger.Error("Setup failed", "error", err)
		os.Exit(1)
	}

	client := lom.NewClient(cfg.Host, cfg.Username, cfg.Password, cfg.RequestTimeout, logger)

	p := poller.New(client, cat, cfg.ScanInterval, cfg.RequestTimeout, cfg.ChunkSize, logger)
	p.SetReauthFunc(flow.Reauthenticate)

	writes := service.NewWriteService(client, cat, cfg.EnableWrites, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector.NewBridgeCollector(cat, p, logger),
	)

	api := httpapi.NewServer(cat, p, writes, registry, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollCtx, pollCancel := context.WithCancel(context.Background())
	go p.Run(pollCtx)

	go func() {
		logger.Info("Server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	pollCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	logger.Info("Bridge stopped")
}

// setupLogger creates a structured logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
