package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
)

// NewStockCommand creates the stock command group. Every subcommand maps
// to one ledger operation; product rules are evaluated after it succeeds.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Apply inventory ledger operations",
		Long: `Apply inventory ledger operations to a product.

A reservation holds units for a pending order; confirm converts held units
into a sale, release gives them back, and return restocks units of an
order that was already confirmed. adjust is a manual correction by a
signed delta.`,
	}

	type ledgerOp func(l *inventory.Ledger, ctx context.Context, productID string, qty int64) (inventory.Result, error)
	quantityOps := []struct {
		use   string
		short string
		op    string
		apply ledgerOp
	}{
		{"reserve", "Hold units for a pending order", inventory.OpReserve, (*inventory.Ledger).Reserve},
		{"confirm", "Convert held units into a sale", inventory.OpConfirm, (*inventory.Ledger).Confirm},
		{"release", "Give held units back", inventory.OpCancelReservation, (*inventory.Ledger).CancelReservation},
		{"return", "Restock units of a confirmed order", inventory.OpReturn, (*inventory.Ledger).Return},
	}
	for _, q := range quantityOps {
		cmd.AddCommand(&cobra.Command{
			Use:           q.use + " <product-id> <quantity>",
			Short:         q.short,
			Args:          cobra.ExactArgs(2),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				f := newFormatter(rootOpts, cmd)
				qty, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return f.Fail(q.op, invalidArg("quantity %q is not an integer", args[1]))
				}
				return runStock(rootOpts, cmd, f, q.op, args[0], func(ctx context.Context, a *app) (inventory.Result, error) {
					return q.apply(a.ledger, ctx, args[0], qty)
				})
			},
		})
	}

	cmd.AddCommand(newStockAdjustCommand(rootOpts))
	cmd.AddCommand(newStockListingCommand(rootOpts))
	return cmd
}

func newStockAdjustCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "adjust <product-id> <delta>",
		Short: "Correct the stock by a signed delta",
		Long: `Correct the stock of a product by a signed delta.

The stock may not drop below zero or below the units currently reserved.

Example:
  fulfil stock adjust --reason "damaged in transit" sku-1 -- -3`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return f.Fail(inventory.OpAdjust, invalidArg("delta %q is not an integer", args[1]))
			}
			return runStock(rootOpts, cmd, f, inventory.OpAdjust, args[0], func(ctx context.Context, a *app) (inventory.Result, error) {
				return a.ledger.Adjust(ctx, args[0], delta, reason)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual adjustment", "reason recorded with the adjustment")
	return cmd
}

func newStockListingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "listing <product-id> <active|out_of_stock|inactive>",
		Short:         "Set the listing status",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			status := domain.ListingStatus(args[1])
			if !status.Valid() {
				return f.Fail(inventory.OpSetListingStatus, invalidArg("unknown listing status %q", args[1]))
			}
			return runStock(rootOpts, cmd, f, inventory.OpSetListingStatus, args[0], func(ctx context.Context, a *app) (inventory.Result, error) {
				return a.ledger.SetListingStatus(ctx, args[0], status)
			})
		},
	}
}

func runStock(
	opts *RootOptions,
	cmd *cobra.Command,
	f *OutputFormatter,
	op, productID string,
	apply func(ctx context.Context, a *app) (inventory.Result, error),
) error {
	ctx := commandContext(cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())
	return withApp(ctx, opts, f, logger, func(a *app) error {
		res, err := apply(ctx, a)
		if err != nil {
			return f.Fail(op, err)
		}
		a.service.StockChanged(productID)
		a.settle(ctx)

		view := newStockView(op, res)
		if p, err := a.store.GetProduct(ctx, productID); err == nil {
			view.Listing = p.Status
		}
		return f.Success(view)
	})
}
