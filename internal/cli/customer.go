package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fulfil/internal/domain"
)

// NewCustomerCommand creates the customer command group.
func NewCustomerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Manage customers",
	}
	cmd.AddCommand(newCustomerAddCommand(rootOpts))
	cmd.AddCommand(newCustomerGetCommand(rootOpts))
	return cmd
}

func newCustomerAddCommand(rootOpts *RootOptions) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:           "add <customer-id>",
		Short:         "Register a customer",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				c := domain.Customer{
					ID:        args[0],
					Name:      name,
					Email:     email,
					CreatedAt: time.Now().UTC(),
				}
				if err := a.store.CreateCustomer(ctx, c); err != nil {
					return f.Fail("add customer", err)
				}
				created, err := a.store.GetCustomer(ctx, c.ID)
				if err != nil {
					return f.Fail("add customer", err)
				}
				return f.Success(customerView{created})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&email, "email", "", "contact address")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCustomerGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <customer-id>",
		Short:         "Show a customer with its order statistics",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				c, err := a.store.GetCustomer(ctx, args[0])
				if err != nil {
					return f.Fail("get customer", err)
				}
				return f.Success(customerView{c})
			})
		},
	}
}
