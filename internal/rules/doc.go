// Package rules evaluates declarative condition/action automation rules
// against orders, products and customers.
//
// A RuleSet is injected when the Engine is built and never changes
// afterwards. Building the engine compiles every rule: condition paths are
// resolved against a typed accessor registry (unknown paths fail with
// UNKNOWN_FIELD), action parameters are checked against a JSON Schema per
// action type, and optional CEL guards are compiled.
//
// Rules are ordered by descending priority; equal priorities keep their
// declaration order. Evaluate runs every enabled rule of the entity's
// bucket whose conditions all hold, executing its actions in declared
// order. Each action fails independently: an error is logged and recorded
// in the Report, and evaluation carries on.
//
// Missing values: when a condition's field is absent on the entity (for
// example customer.email on an order without a customer), not_equals and
// not_contains hold and every other operator does not.
package rules
