package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleType is the bucket a rule belongs to.
type RuleType string

const (
	RuleOrderProcessing     RuleType = "order_processing"
	RuleInventoryManagement RuleType = "inventory_management"
	RuleCustomerEngagement  RuleType = "customer_engagement"
	RuleNotification        RuleType = "notification"
	RulePricing             RuleType = "pricing"
)

// Operator compares a resolved field against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// ActionType names what a matching rule does.
type ActionType string

const (
	ActionUpdateStatus     ActionType = "update_status"
	ActionSendNotification ActionType = "send_notification"
	ActionUpdateInventory  ActionType = "update_inventory"
	ActionSendEmail        ActionType = "send_email"
	ActionCreateTask       ActionType = "create_task"
)

// Condition is one predicate over a dotted field path.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Action is one effect of a matching rule.
type Action struct {
	Type       ActionType     `json:"type" yaml:"type"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Rule is a declarative condition/action automation rule.
//
// Conditions are ANDed. When is an optional CEL guard evaluated after the
// conditions. A positive Cooldown limits the rule to one execution per
// entity per window.
type Rule struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Type       RuleType    `json:"type" yaml:"type"`
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Priority   int         `json:"priority" yaml:"priority"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Actions    []Action    `json:"actions" yaml:"actions"`
	When       string      `json:"when,omitempty" yaml:"when,omitempty"`
	Cooldown   Duration    `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`
}

// RuleSet is a versioned, immutable collection of rules.
type RuleSet struct {
	Version string `json:"version" yaml:"version"`
	Rules   []Rule `json:"rules" yaml:"rules"`
}

// Duration is a time.Duration that serialises as a Go duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes d as a string such as "2h0m0s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(n)
	return nil
}
