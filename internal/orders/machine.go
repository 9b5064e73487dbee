package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
)

// Store is the order persistence the machine needs. UpdateOrder must run
// fn under the store's concurrency control and write nothing when fn fails.
type Store interface {
	UpdateOrder(ctx context.Context, id string, fn func(o *domain.Order) error) (domain.Order, error)
}

// Inventory is the subset of the ledger used for transition side effects.
// Implemented by *inventory.Ledger.
type Inventory interface {
	Confirm(ctx context.Context, productID string, qty int64) (inventory.Result, error)
	CancelReservation(ctx context.Context, productID string, qty int64) (inventory.Result, error)
	Return(ctx context.Context, productID string, qty int64) (inventory.Result, error)
}

// Change describes an accepted transition.
type Change struct {
	Order domain.Order
	From  domain.OrderStatus
	To    domain.OrderStatus
	Actor domain.Role
}

// Machine applies order status transitions.
type Machine struct {
	store     Store
	inventory Inventory
	sender    *notify.Sender
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// NewMachine creates a Machine. sender may be nil.
func NewMachine(store Store, inv Inventory, sender *notify.Sender, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		inventory: inv,
		sender:    sender,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allowed reports whether actor may move an order from one status to
// another.
func (m *Machine) Allowed(from, to domain.OrderStatus, actor domain.Role) bool {
	return Allowed(from, to, actor)
}

// Transition moves order orderID to status to on behalf of actor.
//
// Fails with ILLEGAL_TRANSITION when (current status, to, actor) is not
// allowed; nothing is written and no side effect runs in that case.
// Inventory and notification side effects run after the status change is
// committed. Their failures are logged and do not fail the transition.
func (m *Machine) Transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Role) (Change, error) {
	return m.transition(ctx, orderID, to, actor, nil)
}

// ConfirmPayment marks a pending order paid and confirms it as the system.
// Both fields are written in the same update, so a rejected confirmation
// leaves the payment status untouched.
func (m *Machine) ConfirmPayment(ctx context.Context, orderID string) (Change, error) {
	return m.transition(ctx, orderID, domain.OrderConfirmed, domain.RoleSystem, func(o *domain.Order) {
		o.PaymentStatus = domain.PaymentPaid
	})
}

// transition applies edit, when set, to the order in the same update as the
// status change.
func (m *Machine) transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Role, edit func(o *domain.Order)) (Change, error) {
	if !to.Valid() {
		return Change{}, fmt.Errorf("transition order %s: unknown status %q", orderID, to)
	}

	var from domain.OrderStatus
	order, err := m.store.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		from = o.Status
		if !Allowed(o.Status, to, actor) {
			return domain.NewIllegalTransitionError(orderID, o.Status, to, actor)
		}
		o.Status = to
		if edit != nil {
			edit(o)
		}
		if to == domain.OrderCancelled && o.PaymentStatus == domain.PaymentPaid {
			o.PaymentStatus = domain.PaymentRefunded
		}
		o.UpdatedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		if domain.IsIllegalTransition(err) {
			m.logger.Info("transition rejected",
				"order_id", orderID,
				"from", from,
				"to", to,
				"actor", actor,
			)
		}
		return Change{}, err
	}

	change := Change{Order: order, From: from, To: to, Actor: actor}
	m.logger.Info("order transitioned",
		"order_id", orderID,
		"from", from,
		"to", to,
		"actor", actor,
	)

	m.applyInventory(ctx, change)
	_ = m.sender.Send(ctx, notify.Notification{
		Channel:   notify.ChannelCustomer,
		Kind:      notify.OrderKind(to),
		Recipient: order.CustomerID,
		Payload: map[string]any{
			"orderId": order.ID,
			"from":    string(from),
			"status":  string(to),
			"total":   order.Total().StringFixed(2),
		},
	})
	return change, nil
}

// applyInventory keeps stock in step with the order. Per-item failures are
// logged and skipped.
func (m *Machine) applyInventory(ctx context.Context, c Change) {
	if m.inventory == nil {
		return
	}

	var op string
	var apply func(ctx context.Context, productID string, qty int64) (inventory.Result, error)
	switch {
	case c.From == domain.OrderPending && c.To == domain.OrderConfirmed:
		op, apply = inventory.OpConfirm, m.inventory.Confirm
	case c.From == domain.OrderPending && c.To == domain.OrderCancelled:
		op, apply = inventory.OpCancelReservation, m.inventory.CancelReservation
	case c.To == domain.OrderCancelled:
		op, apply = inventory.OpReturn, m.inventory.Return
	default:
		return
	}

	for _, item := range c.Order.Items {
		if _, err := apply(ctx, item.ProductID, item.Quantity); err != nil {
			m.logger.Warn("inventory side effect failed",
				"order_id", c.Order.ID,
				"product_id", item.ProductID,
				"op", op,
				"error", err,
			)
		}
	}
}
