package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spawn-mcp/adshipper/pkg/app"
	"github.com/spawn-mcp/adshipper/pkg/config"
	"github.com/spawn-mcp/adshipper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Error("Failed to build services", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("Metrics server failed", logger.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- a.Coordinator.Work(ctx)
	}()

	select {
	case sig := <-sigChan:
		zl.Info("Received signal, shutting down", logger.String("signal", sig.String()))
		cancel()
	case err := <-workerErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("Worker stopped", logger.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	zl.Info("Coordinator stopped")
}
