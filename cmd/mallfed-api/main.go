package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pevans/mallfed/api"
	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/history"
	"github.com/pevans/mallfed/mall"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (MALLFED_CONFIG)")
	addr := flag.String("addr", "", "Listen address (MALLFED_API_ADDR, default :8080)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.SetupLogging(os.Stderr)
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	// The registry and history are optional for a read-only API
	var registry *mall.Registry
	if _, err := os.Stat(cfg.Malls); err == nil {
		registry, err = mall.LoadRegistry(cfg.Malls)
		if err != nil {
			slog.Error("failed to load mall registry", "path", cfg.Malls, "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("no mall registry, listing malls from the catalog", "path", cfg.Malls)
	}

	var hist *history.Store
	if _, err := os.Stat(cfg.History); err == nil {
		hist, err = history.NewStore(cfg.History)
		if err != nil {
			slog.Error("failed to open run history", "path", cfg.History, "error", err)
			os.Exit(1)
		}
		defer hist.Close()
	} else {
		slog.Warn("no run history database, run endpoints disabled", "path", cfg.History)
	}

	server := api.NewServer(cfg.Catalog.Path, registry, hist)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting catalog API", "addr", cfg.API.Addr, "catalog", cfg.Catalog.Path)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}
