// Package inventory implements the two-phase stock reservation ledger.
//
// A reservation holds units for a pending order (Reserve) and is later
// either spent (Confirm) or released (CancelReservation). Stock that left
// the warehouse comes back through Return; Adjust applies manual corrections.
//
// Every operation is one atomic read-modify-write through Store.UpdateProduct,
// so the available stock is always computed from the row read inside the
// same transaction and 0 <= ReservedStock <= Stock holds after every commit.
//
// After the update commits, the ledger compares the persisted inventory
// status before and after the change. Crossing into low_stock or
// out_of_stock notifies the owning partner exactly once per crossing.
package inventory
