// Package store provides SQL-backed durable storage for the fulfillment
// records: products with their stock counters, orders, customers, alert
// watermarks and the audit trail of automation rule runs.
//
// # Atomic Updates
//
// UpdateProduct and UpdateOrder read, modify and write a single record
// inside one transaction. This is the only synchronization primitive the
// inventory ledger and the order status machine rely on:
//   - SQLite: the pool holds exactly one connection, so every transaction
//     runs alone and mutators of the same row are linearized
//   - Postgres: the row is read with SELECT ... FOR UPDATE
//
// The callback never sees a stale read: it receives the row as read inside
// the transaction, and the write-back happens before the transaction commits.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Lists are always returned in a deterministic order (ORDER BY id, or by
// created_at then id for orders).
package store
