// Package fulfillment wires the inventory ledger, the order status machine
// and the rule engine into the request paths of the service: placing an
// order, settling its payment and moving it through its lifecycle.
//
// Every state change enqueues an Event. Run drains the queue and evaluates
// the rule bucket of each event's entity, so rules react to changes without
// waiting for the next scheduler pass.
package fulfillment
