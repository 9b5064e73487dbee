package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the externally visible state of a product listing.
type ListingStatus string

const (
	ListingActive     ListingStatus = "active"
	ListingOutOfStock ListingStatus = "out_of_stock"
	ListingInactive   ListingStatus = "inactive"
)

// Valid reports whether s is a known listing status.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingActive, ListingOutOfStock, ListingInactive:
		return true
	}
	return false
}

// Product holds the inventory fields of a catalogue product.
//
// Invariant: 0 <= ReservedStock <= Stock.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PartnerID     string          `json:"partnerId,omitempty"`
	Stock         int64           `json:"stock"`
	ReservedStock int64           `json:"reservedStock"`
	MinStock      int64           `json:"minStock"`
	MaxStock      int64           `json:"maxStock"`
	Status        ListingStatus   `json:"status"`
	Inventory     InventoryStatus `json:"inventoryStatus"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Available returns the units that can still be reserved.
func (p Product) Available() int64 {
	return p.Stock - p.ReservedStock
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderPreparing, OrderShipped, OrderDelivered, OrderCancelled,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderItem is one order line.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns quantity * price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Order is a customer order.
type Order struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customerId"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Items         []OrderItem   `json:"items"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Total sums the subtotals of all lines.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Customer is a storefront customer together with the order statistics the
// store aggregates for it.
type Customer struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	TotalOrders int64           `json:"totalOrders"`
	TotalSpent  decimal.Decimal `json:"totalSpent"`
	LastOrderAt *time.Time      `json:"lastOrderAt,omitempty"`
}

// Role identifies who requests a state change.
type Role string

const (
	RoleAdmin    Role = "admin"
	RolePartner  Role = "partner"
	RoleSystem   Role = "system"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePartner, RoleSystem, RoleCustomer:
		return true
	}
	return false
}
