package cli

import (
	"github.com/spf13/cobra"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scheduler pass and exit",
		Long: `Run a single scheduler pass over pending orders, listed products and
customers, then exit. Cooldown watermarks are honoured exactly as in
"fulfil run", so repeated scans do not repeat alerts.

Suited to cron-driven deployments.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				summary := a.scheduler.RunPeriodicPass(ctx)
				a.settle(ctx)
				view := newPassView(summary)
				if summary.Errors > 0 {
					_ = f.Success(view)
					return NewExitError(ExitFailure, "scheduler pass finished with errors")
				}
				return f.Success(view)
			})
		},
	}

	return cmd
}
