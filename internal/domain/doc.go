// Package domain defines the records and value types shared by the
// fulfillment components: products with their stock counters, orders with
// their lifecycle status, customers, and the declarative automation rules.
//
// The package has no I/O. Everything here is a plain value that the store
// persists and the ledger, status machine, rule engine and scheduler pass
// around as snapshots.
package domain
