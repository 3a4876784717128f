package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spawn-mcp/adshipper/pkg/app"
	"github.com/spawn-mcp/adshipper/pkg/config"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/mcp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// stdout carries the MCP protocol, so logs go to stderr.
	cfg.Log.OutputPaths = []string{"stderr"}
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

	mcpServer := mcp.NewMCPServer(a.Coordinator, app.Version, zl)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := mcpServer.Start(ctx); err != nil {
			zl.Error("MCP server error", logger.Error(err))
		}
		cancel()
	}()

	select {
	case <-sigChan:
		zl.Info("Received shutdown signal")
	case <-ctx.Done():
	}
	zl.Info("Shutdown complete")
}
