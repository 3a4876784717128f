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
	"github.com/spawn-mcp/adshipper/pkg/worker"
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

	a, err := app.Build(context.Background(), cfg, zl)
	if err != nil {
		zl.Error("Failed to build services", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	mux := worker.NewPushHandler(a.Coordinator.HandleMessage, 15*time.Minute, zl).Mux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		zl.Info("Push worker listening", logger.String("port", port))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		zl.Info("Received signal, shutting down", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("Server error", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	zl.Info("Push worker stopped")
}
