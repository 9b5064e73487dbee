package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/scheduler"
)

// Views are the command payloads. JSON output encodes them as is; text
// output prints their String form.

type productView struct {
	domain.Product
	Available int64 `json:"available"`
}

func newProductView(p domain.Product) productView {
	return productView{Product: p, Available: p.Available()}
}

func (v productView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", v.ID, v.Name)
	if v.PartnerID != "" {
		fmt.Fprintf(&b, "  partner:   %s\n", v.PartnerID)
	}
	fmt.Fprintf(&b, "  stock:     %d (reserved %d, available %d)\n", v.Stock, v.ReservedStock, v.Available)
	fmt.Fprintf(&b, "  limits:    min %d, max %d\n", v.MinStock, v.MaxStock)
	fmt.Fprintf(&b, "  inventory: %s\n", v.Inventory)
	fmt.Fprintf(&b, "  listing:   %s", v.Status)
	return b.String()
}

type productListView []productView

func (v productListView) String() string {
	if len(v) == 0 {
		return "no products"
	}
	var b strings.Builder
	for i, p := range v {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-20s %6d/%-6d %-13s %s", p.ID, p.Available, p.Stock, p.Inventory, p.Status)
	}
	return b.String()
}

type stockView struct {
	Operation string                 `json:"operation"`
	ProductID string                 `json:"productId"`
	Stock     int64                  `json:"stock"`
	Reserved  int64                  `json:"reservedStock"`
	Available int64                  `json:"available"`
	Status    domain.InventoryStatus `json:"inventoryStatus"`
	Previous  domain.InventoryStatus `json:"previousStatus"`
	Listing   domain.ListingStatus   `json:"status"`
}

func newStockView(op string, r inventory.Result) stockView {
	return stockView{
		Operation: op,
		ProductID: r.Product.ID,
		Stock:     r.Product.Stock,
		Reserved:  r.Product.ReservedStock,
		Available: r.Available,
		Status:    r.Status,
		Previous:  r.Previous,
		Listing:   r.Product.Status,
	}
}

func (v stockView) String() string {
	s := fmt.Sprintf("%s %s: stock %d, reserved %d, available %d, %s",
		v.Operation, v.ProductID, v.Stock, v.Reserved, v.Available, v.Status)
	if v.Previous != v.Status {
		s += fmt.Sprintf(" (was %s)", v.Previous)
	}
	return s
}

type customerView struct {
	domain.Customer
}

func (v customerView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", v.ID, v.Name)
	if v.Email != "" {
		fmt.Fprintf(&b, "  email:  %s\n", v.Email)
	}
	fmt.Fprintf(&b, "  orders: %d, spent %s", v.TotalOrders, v.TotalSpent.StringFixed(2))
	if v.LastOrderAt != nil {
		fmt.Fprintf(&b, "\n  last:   %s", v.LastOrderAt.Format(time.RFC3339))
	}
	return b.String()
}

type orderView struct {
	domain.Order
	Total string `json:"total"`
}

func newOrderView(o domain.Order) orderView {
	return orderView{Order: o, Total: o.Total().StringFixed(2)}
}

func (v orderView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %s\n", v.ID, v.CustomerID)
	fmt.Fprintf(&b, "  status:  %s (payment %s)\n", v.Status, v.PaymentStatus)
	for _, item := range v.Items {
		fmt.Fprintf(&b, "  %-20s %4d x %s\n", item.ProductID, item.Quantity, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "  total:   %s", v.Total)
	return b.String()
}

type changeView struct {
	OrderID       string               `json:"orderId"`
	From          domain.OrderStatus   `json:"from"`
	To            domain.OrderStatus   `json:"to"`
	Actor         domain.Role          `json:"actor"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
}

func newChangeView(c orders.Change) changeView {
	return changeView{
		OrderID:       c.Order.ID,
		From:          c.From,
		To:            c.To,
		Actor:         c.Actor,
		PaymentStatus: c.Order.PaymentStatus,
	}
}

func (v changeView) String() string {
	return fmt.Sprintf("%s: %s -> %s by %s (payment %s)", v.OrderID, v.From, v.To, v.Actor, v.PaymentStatus)
}

type passView struct {
	scheduler.PassSummary
	Evaluated int `json:"evaluated"`
}

func newPassView(s scheduler.PassSummary) passView {
	return passView{PassSummary: s, Evaluated: s.Evaluated()}
}

func (v passView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pass %s\n", v.PassID)
	fmt.Fprintf(&b, "  evaluated:  %d (orders %d, products %d, customers %d)\n", v.Evaluated, v.Orders, v.Products, v.Customers)
	fmt.Fprintf(&b, "  matched:    %d (suppressed %d)\n", v.Matched, v.Suppressed)
	fmt.Fprintf(&b, "  actions:    %d (failed %d)\n", v.Actions, v.FailedActions)
	fmt.Fprintf(&b, "  errors:     %d", v.Errors)
	return b.String()
}
