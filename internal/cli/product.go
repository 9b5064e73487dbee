package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/store"
)

// ProductAddOptions holds flags for the product add command.
type ProductAddOptions struct {
	*RootOptions
	Name      string
	PartnerID string
	Stock     int64
	MinStock  int64
	MaxStock  int64
	Inactive  bool
}

// NewProductCommand creates the product command group.
func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalogue products",
	}
	cmd.AddCommand(newProductAddCommand(rootOpts))
	cmd.AddCommand(newProductGetCommand(rootOpts))
	cmd.AddCommand(newProductListCommand(rootOpts))
	return cmd
}

func newProductAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product with its stock thresholds",
		Long: `Add a product to the catalogue.

The inventory status is derived from the stock and the thresholds. A
--max of 0 means the product has no overstock threshold.

Example:
  fulfil product add sku-1 --name "Blue mug" --partner acme --stock 40 --min 5 --max 200`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProductAdd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.PartnerID, "partner", "", "owning partner")
	cmd.Flags().Int64Var(&opts.Stock, "stock", 0, "units on hand")
	cmd.Flags().Int64Var(&opts.MinStock, "min", 0, "low stock threshold")
	cmd.Flags().Int64Var(&opts.MaxStock, "max", 0, "overstock threshold (0 = none)")
	cmd.Flags().BoolVar(&opts.Inactive, "inactive", false, "create the listing inactive")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runProductAdd(opts *ProductAddOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Stock < 0 || opts.MinStock < 0 || opts.MaxStock < 0 {
		return f.Fail("add product", invalidArg("stock and thresholds must not be negative"))
	}

	ctx := commandContext(cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	return withApp(ctx, opts.RootOptions, f, logger, func(a *app) error {
		p := domain.Product{
			ID:        id,
			Name:      opts.Name,
			PartnerID: opts.PartnerID,
			Stock:     opts.Stock,
			MinStock:  opts.MinStock,
			MaxStock:  opts.MaxStock,
			Status:    domain.ListingActive,
			UpdatedAt: time.Now().UTC(),
		}
		if opts.Inactive {
			p.Status = domain.ListingInactive
		}
		if err := a.store.CreateProduct(ctx, p); err != nil {
			return f.Fail("add product", err)
		}
		created, err := a.store.GetProduct(ctx, id)
		if err != nil {
			return f.Fail("add product", err)
		}
		f.VerboseLog("product %s added as %s", id, created.Inventory)
		return f.Success(newProductView(created))
	})
}

func newProductGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <product-id>",
		Short:         "Show a product's stock",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				p, err := a.store.GetProduct(ctx, args[0])
				if err != nil {
					return f.Fail("get product", err)
				}
				return f.Success(newProductView(p))
			})
		},
	}
}

func newProductListCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string
	var partnerID string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List products",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			filter := store.ProductFilter{PartnerID: partnerID}
			for _, s := range statuses {
				st := domain.ListingStatus(s)
				if !st.Valid() {
					return f.Fail("list products", invalidArg("unknown listing status %q", s))
				}
				filter.Statuses = append(filter.Statuses, st)
			}

			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				products, err := a.store.ListProducts(ctx, filter)
				if err != nil {
					return f.Fail("list products", err)
				}
				views := make(productListView, len(products))
				for i, p := range products {
					views[i] = newProductView(p)
				}
				return f.Success(views)
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "listing statuses to include (active, out_of_stock, inactive)")
	cmd.Flags().StringVar(&partnerID, "partner", "", "only products of this partner")
	return cmd
}
