// Package orders implements the order lifecycle state machine.
//
// The base edges are
//
//	pending   -> confirmed | cancelled
//	confirmed -> preparing | cancelled
//	preparing -> shipped   | cancelled
//	shipped   -> delivered
//
// and every edge is gated by the role of the actor requesting it:
//
//	system    base edges
//	admin     base edges, plus cancelling any non-terminal order
//	partner   the forward step only, never cancellation
//	customer  cancelling a pending order only
//
// delivered and cancelled are terminal.
//
// Machine.Transition checks the edge against the status read inside the
// atomic order update. Rejected transitions leave no side effect. Accepted
// ones notify the customer and keep inventory in step: confirming spends the
// reservation, cancelling a pending order releases it, cancelling later
// returns the stock.
package orders
