// Command shipctl runs adshipper operations from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spawn-mcp/adshipper/pkg/app"
	"github.com/spawn-mcp/adshipper/pkg/config"
	"github.com/spawn-mcp/adshipper/pkg/logger"
)

var (
	dryRun bool
	debug  bool

	rootCmd = &cobra.Command{
		Use:           "shipctl",
		Short:         "Ship video ads from the planning sheet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "stop before publishing anything")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shipctl version %s\n", app.Version)
		},
	})
	rootCmd.AddCommand(shipCommand(), discoverCommand(), sweepCacheCommand(), triggerCommand(), flushDedupCommand(), validateCommand())
}

// loadConfig reads the environment and applies global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// withApp builds the services, runs fn, and closes them.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
