package rules

import (
	"time"

	"github.com/roach88/fulfil/internal/domain"
)

// DefaultRuleSet returns the rules the service runs when no rule set file
// is configured.
func DefaultRuleSet() domain.RuleSet {
	day := domain.Duration(24 * time.Hour)
	return domain.RuleSet{
		Version: "1.0.0",
		Rules: []domain.Rule{
			{
				ID:       "delist-out-of-stock",
				Name:     "Delist products that ran out of stock",
				Type:     domain.RuleInventoryManagement,
				Enabled:  true,
				Priority: 10,
				Conditions: []domain.Condition{
					{Field: "availableStock", Operator: domain.OpLessThan, Value: 1},
					{Field: "status", Operator: domain.OpEquals, Value: "active"},
				},
				Actions: []domain.Action{
					{Type: domain.ActionUpdateStatus, Parameters: map[string]any{"status": "out_of_stock"}},
				},
			},
			{
				ID:       "auto-confirm-paid",
				Name:     "Confirm pending orders that are paid",
				Type:     domain.RuleOrderProcessing,
				Enabled:  true,
				Priority: 9,
				Conditions: []domain.Condition{
					{Field: "status", Operator: domain.OpEquals, Value: "pending"},
					{Field: "paymentStatus", Operator: domain.OpEquals, Value: "paid"},
				},
				Actions: []domain.Action{
					{Type: domain.ActionUpdateStatus, Parameters: map[string]any{"status": "confirmed"}},
				},
			},
			{
				ID:       "low-stock-restock",
				Name:     "Open a restock task for low stock",
				Type:     domain.RuleInventoryManagement,
				Enabled:  true,
				Priority: 8,
				Conditions: []domain.Condition{
					{Field: "inventoryStatus", Operator: domain.OpEquals, Value: "low_stock"},
				},
				Actions: []domain.Action{
					{Type: domain.ActionCreateTask, Parameters: map[string]any{
						"title":    "Restock product",
						"assignee": "inventory-team",
						"priority": "high",
					}},
				},
				Cooldown: day,
			},
			{
				ID:       "stale-pending-order",
				Name:     "Alert on orders pending for more than a day",
				Type:     domain.RuleNotification,
				Enabled:  true,
				Priority: 7,
				Conditions: []domain.Condition{
					{Field: "status", Operator: domain.OpEquals, Value: "pending"},
					{Field: "hoursSinceCreated", Operator: domain.OpGreaterThan, Value: 24},
				},
				Actions: []domain.Action{
					{Type: domain.ActionSendNotification, Parameters: map[string]any{
						"message": "Order has been pending for more than 24 hours",
					}},
				},
				Cooldown: day,
			},
			{
				ID:       "large-order-review",
				Name:     "Ask for a review of large pending orders",
				Type:     domain.RuleOrderProcessing,
				Enabled:  true,
				Priority: 6,
				Conditions: []domain.Condition{
					{Field: "status", Operator: domain.OpEquals, Value: "pending"},
					{Field: "total", Operator: domain.OpGreaterThan, Value: 500},
				},
				Actions: []domain.Action{
					{Type: domain.ActionSendNotification, Parameters: map[string]any{
						"message": "Large order awaiting confirmation",
					}},
				},
				Cooldown: day,
			},
			{
				ID:       "vip-outreach",
				Name:     "Reach out to high value customers",
				Type:     domain.RuleCustomerEngagement,
				Enabled:  true,
				Priority: 5,
				Conditions: []domain.Condition{
					{Field: "totalSpent", Operator: domain.OpGreaterThan, Value: 1000},
				},
				Actions: []domain.Action{
					{Type: domain.ActionCreateTask, Parameters: map[string]any{
						"title":    "Reach out to VIP customer",
						"assignee": "account-management",
					}},
				},
				Cooldown: domain.Duration(30 * 24 * time.Hour),
			},
			{
				ID:       "win-back",
				Name:     "Win back customers who stopped ordering",
				Type:     domain.RuleCustomerEngagement,
				Enabled:  true,
				Priority: 3,
				Conditions: []domain.Condition{
					{Field: "daysSinceLastOrder", Operator: domain.OpGreaterThan, Value: 60},
					{Field: "email", Operator: domain.OpContains, Value: "@"},
				},
				Actions: []domain.Action{
					{Type: domain.ActionSendEmail, Parameters: map[string]any{
						"template": "win-back",
						"subject":  "We miss you",
					}},
				},
				Cooldown: domain.Duration(30 * 24 * time.Hour),
			},
			{
				ID:       "overstock-promotion",
				Name:     "Suggest a promotion for overstocked products",
				Type:     domain.RulePricing,
				Enabled:  true,
				Priority: 2,
				Conditions: []domain.Condition{
					{Field: "inventoryStatus", Operator: domain.OpEquals, Value: "overstocked"},
				},
				Actions: []domain.Action{
					{Type: domain.ActionCreateTask, Parameters: map[string]any{
						"title":    "Consider a promotion",
						"assignee": "merchandising",
						"priority": "low",
					}},
				},
				Cooldown: domain.Duration(7 * 24 * time.Hour),
			},
		},
	}
}
