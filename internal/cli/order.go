package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/store"
)

// OrderCreateOptions holds flags for the order create command.
type OrderCreateOptions struct {
	*RootOptions
	CustomerID string
	Items      []string // product:quantity:price
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create orders and move them through their lifecycle",
	}
	cmd.AddCommand(newOrderCreateCommand(rootOpts))
	cmd.AddCommand(newOrderGetCommand(rootOpts))
	cmd.AddCommand(newOrderListCommand(rootOpts))
	cmd.AddCommand(newOrderPayCommand(rootOpts))
	cmd.AddCommand(newOrderCancelCommand(rootOpts))
	cmd.AddCommand(newOrderTransitionCommand(rootOpts))
	return cmd
}

func newOrderCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Reserve stock and record a pending order",
		Long: `Reserve stock for every line and record a pending order.

Each --item is product:quantity:price. When any line cannot be reserved
the lines already reserved are released and no order is recorded.

Example:
  fulfil order create --customer cust-1 --item sku-1:2:9.99 --item sku-7:1:24.50`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CustomerID, "customer", "", "ordering customer (required)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "order line as product:quantity:price (repeatable)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

func runOrderCreate(opts *OrderCreateOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	items := make([]domain.OrderItem, 0, len(opts.Items))
	for _, raw := range opts.Items {
		item, err := parseItem(raw)
		if err != nil {
			return f.Fail("create order", err)
		}
		items = append(items, item)
	}

	ctx := commandContext(cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	return withApp(ctx, opts.RootOptions, f, logger, func(a *app) error {
		order, err := a.service.CreateOrder(ctx, opts.CustomerID, items)
		if err != nil {
			return f.Fail("create order", err)
		}
		a.settle(ctx)
		f.VerboseLog("order %s reserved %d line(s)", order.ID, len(order.Items))
		return f.Success(newOrderView(order))
	})
}

// parseItem parses product:quantity:price.
func parseItem(raw string) (domain.OrderItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] == "" {
		return domain.OrderItem{}, invalidArg("item %q: want product:quantity:price", raw)
	}
	qty, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.OrderItem{}, invalidArg("item %q: quantity is not an integer", raw)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return domain.OrderItem{}, invalidArg("item %q: price is not a decimal", raw)
	}
	return domain.OrderItem{ProductID: parts[0], Quantity: qty, Price: price}, nil
}

func newOrderGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <order-id>",
		Short:         "Show an order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				o, err := a.store.GetOrder(ctx, args[0])
				if err != nil {
					return f.Fail("get order", err)
				}
				return f.Success(newOrderView(o))
			})
		},
	}
}

type orderListView []orderView

func (v orderListView) String() string {
	if len(v) == 0 {
		return "no orders"
	}
	lines := make([]string, len(v))
	for i, o := range v {
		lines[i] = o.ID + "  " + o.CustomerID + "  " + string(o.Status) + "  " + string(o.PaymentStatus) + "  " + o.Total
	}
	return strings.Join(lines, "\n")
}

func newOrderListCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string
	var customerID string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List orders oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			filter := store.OrderFilter{CustomerID: customerID}
			for _, s := range statuses {
				st := domain.OrderStatus(s)
				if !st.Valid() {
					return f.Fail("list orders", invalidArg("unknown order status %q", s))
				}
				filter.Statuses = append(filter.Statuses, st)
			}

			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				list, err := a.store.ListOrders(ctx, filter)
				if err != nil {
					return f.Fail("list orders", err)
				}
				views := make(orderListView, len(list))
				for i, o := range list {
					views[i] = newOrderView(o)
				}
				return f.Success(views)
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "order statuses to include")
	cmd.Flags().StringVar(&customerID, "customer", "", "only orders of this customer")
	return cmd
}

func newOrderPayCommand(rootOpts *RootOptions) *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Record the payment outcome of a pending order",
		Long: `Record the payment outcome of a pending order.

A successful payment marks the order paid and confirms it, which turns its
reservations into sales. With --failed the order stays pending and the
customer is told the payment did not go through.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			return withApp(ctx, rootOpts, f, logger, func(a *app) error {
				if failed {
					o, err := a.service.FailPayment(ctx, args[0])
					if err != nil {
						return f.Fail("fail payment", err)
					}
					a.settle(ctx)
					return f.Success(newOrderView(o))
				}
				change, err := a.service.ConfirmPayment(ctx, args[0])
				if err != nil {
					return f.Fail("confirm payment", err)
				}
				a.settle(ctx)
				return f.Success(newChangeView(change))
			})
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "record a failed payment")
	return cmd
}

func newOrderCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:           "cancel <order-id>",
		Short:         "Cancel an order and give its stock back",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, "cancel order", actor, func(ctx context.Context, a *app, role domain.Role) (orders.Change, error) {
				return a.service.CancelOrder(ctx, args[0], role)
			})
		},
	}

	cmd.Flags().StringVar(&actor, "as", string(domain.RoleAdmin), "acting role (admin, partner, system, customer)")
	return cmd
}

func newOrderTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "transition <order-id> <status>",
		Short: "Move an order to another status",
		Long: `Move an order to another status on behalf of a role.

The move is checked against the transition matrix for the role. Leaving
pending or confirmed for cancelled releases or restocks the order's units.

Example:
  fulfil order transition ord-1 preparing --as partner`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			to := domain.OrderStatus(args[1])
			return runTransition(rootOpts, cmd, "transition order", actor, func(ctx context.Context, a *app, role domain.Role) (orders.Change, error) {
				if !to.Valid() {
					return orders.Change{}, invalidArg("unknown order status %q", args[1])
				}
				return a.service.Transition(ctx, args[0], to, role)
			})
		},
	}

	cmd.Flags().StringVar(&actor, "as", string(domain.RoleAdmin), "acting role (admin, partner, system, customer)")
	return cmd
}

func runTransition(
	opts *RootOptions,
	cmd *cobra.Command,
	op, actor string,
	apply func(ctx context.Context, a *app, role domain.Role) (orders.Change, error),
) error {
	f := newFormatter(opts, cmd)
	role := domain.Role(actor)
	if !role.Valid() {
		return f.Fail(op, invalidArg("unknown role %q", actor))
	}

	ctx := commandContext(cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())
	return withApp(ctx, opts, f, logger, func(a *app) error {
		change, err := apply(ctx, a, role)
		if err != nil {
			return f.Fail(op, err)
		}
		a.settle(ctx)
		return f.Success(newChangeView(change))
	})
}
