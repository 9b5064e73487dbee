package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/orders"
)

// stepFunc runs one flow step and returns its result.
type stepFunc func(ctx context.Context, h *Harness, args stepArgs) (any, error)

var steps = map[string]stepFunc{
	"order.create":       createOrder,
	"order.pay":          payOrder,
	"order.fail_payment": failPayment,
	"order.cancel":       cancelOrder,
	"order.transition":   transitionOrder,
	"stock.reserve":      quantityStep((*inventory.Ledger).Reserve),
	"stock.confirm":      quantityStep((*inventory.Ledger).Confirm),
	"stock.release":      quantityStep((*inventory.Ledger).CancelReservation),
	"stock.return":       quantityStep((*inventory.Ledger).Return),
	"stock.adjust":       adjustStock,
	"stock.listing":      setListing,
	"clock.advance":      advanceClock,
	"scheduler.pass":     schedulerPass,
}

// Steps returns the names of the supported flow steps.
func Steps() []string {
	names := make([]string, 0, len(steps))
	for name := range steps {
		names = append(names, name)
	}
	return names
}

func createOrder(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	customerID, err := args.str("customer")
	if err != nil {
		return nil, err
	}
	raw, ok := args["items"].([]any)
	if !ok {
		return nil, fmt.Errorf("items: want a list")
	}
	items := make([]domain.OrderItem, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items[%d]: want a map", i)
		}
		line := stepArgs(m)
		productID, err := line.str("product")
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		qty, err := line.integer("quantity")
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		price, err := decimal.NewFromString(fmt.Sprint(line["price"]))
		if err != nil {
			return nil, fmt.Errorf("items[%d]: price: %w", i, err)
		}
		items = append(items, domain.OrderItem{ProductID: productID, Quantity: qty, Price: price})
	}

	o, err := h.service.CreateOrder(ctx, customerID, items)
	if err != nil {
		return nil, err
	}
	return orderResult(o), nil
}

func payOrder(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	orderID, err := args.str("order")
	if err != nil {
		return nil, err
	}
	change, err := h.service.ConfirmPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return changeResult(change), nil
}

func failPayment(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	orderID, err := args.str("order")
	if err != nil {
		return nil, err
	}
	o, err := h.service.FailPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return orderResult(o), nil
}

func cancelOrder(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	orderID, err := args.str("order")
	if err != nil {
		return nil, err
	}
	role, err := args.role()
	if err != nil {
		return nil, err
	}
	change, err := h.service.CancelOrder(ctx, orderID, role)
	if err != nil {
		return nil, err
	}
	return changeResult(change), nil
}

func transitionOrder(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	orderID, err := args.str("order")
	if err != nil {
		return nil, err
	}
	to, err := args.str("to")
	if err != nil {
		return nil, err
	}
	role, err := args.role()
	if err != nil {
		return nil, err
	}
	change, err := h.service.Transition(ctx, orderID, domain.OrderStatus(to), role)
	if err != nil {
		return nil, err
	}
	return changeResult(change), nil
}

type ledgerOp func(l *inventory.Ledger, ctx context.Context, productID string, qty int64) (inventory.Result, error)

func quantityStep(op ledgerOp) stepFunc {
	return func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		productID, err := args.str("product")
		if err != nil {
			return nil, err
		}
		qty, err := args.integer("quantity")
		if err != nil {
			return nil, err
		}
		return h.stock(ctx, productID, func() (inventory.Result, error) {
			return op(h.ledger, ctx, productID, qty)
		})
	}
}

func adjustStock(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	productID, err := args.str("product")
	if err != nil {
		return nil, err
	}
	delta, err := args.integer("delta")
	if err != nil {
		return nil, err
	}
	reason := "scenario adjustment"
	if r, ok := args["reason"].(string); ok {
		reason = r
	}
	return h.stock(ctx, productID, func() (inventory.Result, error) {
		return h.ledger.Adjust(ctx, productID, delta, reason)
	})
}

func setListing(ctx context.Context, h *Harness, args stepArgs) (any, error) {
	productID, err := args.str("product")
	if err != nil {
		return nil, err
	}
	status, err := args.str("status")
	if err != nil {
		return nil, err
	}
	return h.stock(ctx, productID, func() (inventory.Result, error) {
		return h.ledger.SetListingStatus(ctx, productID, domain.ListingStatus(status))
	})
}

// stock applies a ledger operation and queues the product for rule
// evaluation.
func (h *Harness) stock(ctx context.Context, productID string, apply func() (inventory.Result, error)) (any, error) {
	res, err := apply()
	if err != nil {
		return nil, err
	}
	h.service.StockChanged(productID)

	out := map[string]any{
		"productId":       res.Product.ID,
		"stock":           res.Product.Stock,
		"reservedStock":   res.Product.ReservedStock,
		"available":       res.Available,
		"inventoryStatus": string(res.Status),
		"previousStatus":  string(res.Previous),
		"status":          string(res.Product.Status),
	}
	if p, err := h.store.GetProduct(ctx, productID); err == nil {
		out["status"] = string(p.Status)
	}
	return out, nil
}

func advanceClock(_ context.Context, h *Harness, args stepArgs) (any, error) {
	raw, err := args.str("duration")
	if err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	if d < 0 {
		return nil, fmt.Errorf("duration: must not be negative")
	}
	return map[string]any{"now": h.clock.Advance(d).UTC().Format(time.RFC3339)}, nil
}

func schedulerPass(ctx context.Context, h *Harness, _ stepArgs) (any, error) {
	s := h.scheduler.RunPeriodicPass(ctx)
	return map[string]any{
		"orders":        s.Orders,
		"products":      s.Products,
		"customers":     s.Customers,
		"matched":       s.Matched,
		"suppressed":    s.Suppressed,
		"actions":       s.Actions,
		"failedActions": s.FailedActions,
		"errors":        s.Errors,
	}, nil
}

func orderResult(o domain.Order) map[string]any {
	return map[string]any{
		"id":            o.ID,
		"customerId":    o.CustomerID,
		"status":        string(o.Status),
		"paymentStatus": string(o.PaymentStatus),
		"total":         o.Total().StringFixed(2),
	}
}

func changeResult(c orders.Change) map[string]any {
	return map[string]any{
		"orderId":       c.Order.ID,
		"from":          string(c.From),
		"to":            string(c.To),
		"actor":         string(c.Actor),
		"paymentStatus": string(c.Order.PaymentStatus),
	}
}

// stepArgs are the YAML arguments of a step.
type stepArgs map[string]any

func (a stepArgs) str(key string) (string, error) {
	s, ok := a[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: want a non-empty string", key)
	}
	return s, nil
}

func (a stepArgs) integer(key string) (int64, error) {
	switch v := a[key].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	}
	return 0, fmt.Errorf("%s: want an integer", key)
}

// role returns the "as" argument, admin when absent.
func (a stepArgs) role() (domain.Role, error) {
	raw, ok := a["as"].(string)
	if !ok {
		return domain.RoleAdmin, nil
	}
	role := domain.Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("as: unknown role %q", raw)
	}
	return role, nil
}
