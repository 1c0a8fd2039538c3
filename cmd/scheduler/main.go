// Command scheduler runs the notification pass.
//
// Usage:
//
//	practice-scheduler run            one pass, prints the report
//	practice-scheduler run --json     same, report as JSON
//	practice-scheduler serve          pass every BATCH_INTERVAL, /metrics on METRICS_ADDRESS
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"example.com/practice/internal/config"
	persistence "example.com/practice/internal/persistence/postgres"
	"example.com/practice/internal/scheduler"
	httptransport "example.com/practice/internal/transport/http"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	root := &cobra.Command{
		Use:           "practice-scheduler",
		Short:         "Practice streak notification scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var asJSON bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every user once and deliver eligible notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(ctx context.Context, cfg config.Config, rt *scheduler.Runtime) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				report, err := rt.Runner.RunOnce(ctx)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(report); encErr != nil {
						return encErr
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 50*time.Minute, "Abort the pass after this long (0 disables)")
	return cmd
}

func serveCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a pass every interval and expose metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(ctx context.Context, cfg config.Config, rt *scheduler.Runtime) error {
				if interval <= 0 {
					interval = cfg.BatchInterval
				}

				metrics := http.NewServeMux()
				metrics.Handle("/metrics", promhttp.Handler())

				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := httptransport.Serve(ctx, httptransport.DefaultServerConfig(cfg.MetricsAddress), metrics, logger); err != nil {
						logger.Error("metrics server error", "error", err)
					}
				}()

				rt.Runner.Start(ctx, interval)
				wg.Wait()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Pass interval (defaults to BATCH_INTERVAL)")
	return cmd
}

// withRuntime validates configuration, connects to Postgres and the brokers,
// and runs fn until it returns or the process is signalled.
func withRuntime(fn func(ctx context.Context, cfg config.Config, rt *scheduler.Runtime) error) error {
	cfg := config.Load()
	if err := cfg.ValidateScheduler(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	rt, err := scheduler.Build(cfg, persistence.NewRepository(pool), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close delivery connections", "error", err)
		}
	}()

	return fn(ctx, cfg, rt)
}
