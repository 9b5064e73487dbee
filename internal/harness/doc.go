// Package harness runs fulfillment scenarios end to end.
//
// A scenario seeds a fresh store, drives the order service, the inventory
// ledger and the scheduler through a list of steps, and checks the
// outcome of every step, the notifications that were sent and the rows
// left in the store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: order_lifecycle
//	description: "A partner may not cancel an order"
//	rules: ../../configs/rules.yaml    # optional, defaults to the built-in rules
//	start: 2026-03-14T09:30:00Z        # optional
//	setup:
//	  products:
//	    - {id: sku-1, name: Mug, partner: acme, stock: 10, min: 2}
//	  customers:
//	    - {id: cust-1, name: Ada, email: ada@example.com}
//	flow:
//	  - invoke: order.create
//	    args: {customer: cust-1, items: [{product: sku-1, quantity: 2, price: "9.99"}]}
//	    expect:
//	      case: ok
//	      result: {id: ord-1, total: "19.98"}
//	  - invoke: order.cancel
//	    args: {order: ord-1, as: partner}
//	    expect: {case: ILLEGAL_TRANSITION}
//	assertions:
//	  - type: trace_contains
//	    action: notify.order_created
//	    args: {recipient: cust-1}
//	  - type: final_state
//	    table: products
//	    where: {id: sku-1}
//	    expect: {stock: 10}
//
// A step without an expect clause must succeed. The case of a failed step
// is the domain error code, PAYMENT_SETTLED, or "error" for anything else.
//
// # Steps
//
//   - order.create, order.pay, order.fail_payment, order.cancel, order.transition
//   - stock.reserve, stock.confirm, stock.release, stock.return, stock.adjust, stock.listing
//   - clock.advance, scheduler.pass
//
// Events queued by a step are evaluated before the next step runs.
//
// # Assertion Types
//
//   - trace_contains: an invocation or notification with matching args
//   - trace_order: the named events appear in this order
//   - trace_count: the named event appears exactly N times
//   - final_state: one row of a store table holds the expected values
//
// Notifications appear in the trace as notify.<kind> with the channel,
// recipient and payload as args.
//
// # Deterministic Testing
//
// Every scenario runs on an in-memory SQLite store with a frozen clock and
// sequential IDs (ord-1, ord-2, ...), so traces are identical across runs
// and can be compared against golden files.
package harness
