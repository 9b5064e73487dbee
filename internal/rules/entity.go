package rules

import (
	"time"

	"github.com/roach88/fulfil/internal/domain"
)

// Kind is the kind of entity a rule bucket applies to.
type Kind string

const (
	KindOrder    Kind = "order"
	KindProduct  Kind = "product"
	KindCustomer Kind = "customer"
)

// KindOf returns the entity kind a rule type applies to.
func KindOf(t domain.RuleType) (Kind, bool) {
	switch t {
	case domain.RuleOrderProcessing, domain.RuleNotification:
		return KindOrder, true
	case domain.RuleInventoryManagement, domain.RulePricing:
		return KindProduct, true
	case domain.RuleCustomerEngagement:
		return KindCustomer, true
	}
	return "", false
}

// Entity is an immutable snapshot a rule is evaluated against.
//
// Exactly one of Order, Product and Customer is the subject, selected by
// Kind. An order entity may carry its customer; Now anchors the derived
// time fields.
type Entity struct {
	Kind     Kind
	ID       string
	Order    *domain.Order
	Product  *domain.Product
	Customer *domain.Customer
	Now      time.Time
}

// OrderEntity snapshots an order. customer may be nil.
func OrderEntity(o domain.Order, customer *domain.Customer, now time.Time) Entity {
	return Entity{Kind: KindOrder, ID: o.ID, Order: &o, Customer: customer, Now: now}
}

// ProductEntity snapshots a product.
func ProductEntity(p domain.Product, now time.Time) Entity {
	return Entity{Kind: KindProduct, ID: p.ID, Product: &p, Now: now}
}

// CustomerEntity snapshots a customer.
func CustomerEntity(c domain.Customer, now time.Time) Entity {
	return Entity{Kind: KindCustomer, ID: c.ID, Customer: &c, Now: now}
}
