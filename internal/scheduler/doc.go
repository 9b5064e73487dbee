// Package scheduler drives the periodic evaluation of automation rules.
//
// A pass lists the pending orders, the active and out-of-stock products
// and every customer, snapshots each one as a rules.Entity, and evaluates
// the entity's rule bucket to completion before moving on. Failures are
// isolated per entity: a store error, an action error or a panic inside one
// evaluation never stops the pass.
//
// Rules with a cooldown claim an alert watermark before they fire, so a
// scheduler ticking every few minutes over the same stale order raises one
// alert per cooldown window. Watermarks live either in the SQL store or in
// Redis (RedisWatermarks).
package scheduler
