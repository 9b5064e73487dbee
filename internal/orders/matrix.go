package orders

import "github.com/roach88/fulfil/internal/domain"

type edge struct {
	from domain.OrderStatus
	to   domain.OrderStatus
}

// baseEdges is the lifecycle graph the system role follows.
var baseEdges = map[edge]bool{
	{domain.OrderPending, domain.OrderConfirmed}:   true,
	{domain.OrderPending, domain.OrderCancelled}:   true,
	{domain.OrderConfirmed, domain.OrderPreparing}: true,
	{domain.OrderConfirmed, domain.OrderCancelled}: true,
	{domain.OrderPreparing, domain.OrderShipped}:   true,
	{domain.OrderPreparing, domain.OrderCancelled}: true,
	{domain.OrderShipped, domain.OrderDelivered}:   true,
}

// forwardStep is the happy-path successor of each non-terminal status.
var forwardStep = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderPending:   domain.OrderConfirmed,
	domain.OrderConfirmed: domain.OrderPreparing,
	domain.OrderPreparing: domain.OrderShipped,
	domain.OrderShipped:   domain.OrderDelivered,
}

// Allowed reports whether actor may move an order from one status to
// another.
func Allowed(from, to domain.OrderStatus, actor domain.Role) bool {
	if from.Terminal() || from == to {
		return false
	}

	switch actor {
	case domain.RoleSystem:
		return baseEdges[edge{from, to}]
	case domain.RoleAdmin:
		return baseEdges[edge{from, to}] || to == domain.OrderCancelled
	case domain.RolePartner:
		next, ok := forwardStep[from]
		return ok && next == to
	case domain.RoleCustomer:
		return from == domain.OrderPending && to == domain.OrderCancelled
	default:
		return false
	}
}

// Targets returns the statuses actor may move an order in from to, in
// lifecycle order.
func Targets(from domain.OrderStatus, actor domain.Role) []domain.OrderStatus {
	var out []domain.OrderStatus
	for _, to := range domain.OrderStatuses {
		if Allowed(from, to, actor) {
			out = append(out, to)
		}
	}
	return out
}
