package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and the event loop",
		Long: `Run the fulfillment service until interrupted.

Opens the store (creating the SQLite schema if needed), compiles the rule
set, and starts two loops: the event loop that evaluates rules for
entities touched by requests, and the scheduler that re-evaluates pending
orders, listed products and customers on every interval.

Example:
  fulfil run --db ./fulfil.db
  fulfil run --config ./configs/fulfil.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(rootOpts, cmd)
		},
	}

	return cmd
}

func runService(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	logger.Info("opening store", "driver", cfg.Store.Driver)
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing backends", "error", closeErr)
		}
	}()

	logger.Info("service starting",
		"rules", len(a.engine.Rules()),
		"interval", a.scheduler.Interval(),
		"transport", cfg.Notify.Transport,
		"watermarks", cfg.Watermarks.Backend,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Service started. Scheduler runs every %s.\n", a.scheduler.Interval())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.service.Run(ctx)
	}()

	err = a.scheduler.Run(ctx)
	a.service.Close()
	wg.Wait()
	if err != nil {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	logger.Info("service stopped gracefully")
	return nil
}
