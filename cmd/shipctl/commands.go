package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spawn-mcp/adshipper/pkg/app"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

func shipCommand() *cobra.Command {
	var rowsFile, groupID string
	cmd := &cobra.Command{
		Use:   "ship",
		Short: "Ship a batch of rows from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readRows(rowsFile)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary := a.Coordinator.RunBatch(ctx, types.BatchRequest{
					GroupID: groupID,
					Rows:    rows,
					DryRun:  a.Config.DryRun,
				})
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d rows failed", summary.Failed, summary.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rowsFile, "rows", "", "path to a JSON array of rows")
	cmd.Flags().StringVar(&groupID, "group", "", "campaign ID (defaults to META_CAMPAIGN_ID)")
	_ = cmd.MarkFlagRequired("rows")
	return cmd
}

func readRows(path string) ([]types.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var rows []types.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse rows %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s contains no rows", path)
	}
	return rows, nil
}

func discoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Queue jobs for ready rows in the planning sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Coordinator.Discover(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func sweepCacheCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-cache",
		Short: "Delete expired video analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Cache.Sweep(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired analyses\n", n)
				return nil
			})
		},
	}
}

func triggerCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a worker execution to drain the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				exec, err := a.GCP.TriggerWorker(ctx, a.Config.WorkerJobName, map[string]string{
					"DRY_RUN": fmt.Sprint(a.Config.DryRun),
				}, timeout)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), exec)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "worker execution timeout")
	return cmd
}

func flushDedupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-dedup",
		Short: "Forget every shipped row so it can be queued again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Tracker == nil {
					return fmt.Errorf("REDIS_ADDR is not set")
				}
				n, err := a.Tracker.FlushAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d shipped rows\n", n)
				return nil
			})
		},
	}
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the environment has everything a batch needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(cfg.DryRun); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
}
