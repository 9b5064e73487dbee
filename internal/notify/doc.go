// Package notify delivers fulfillment notifications to admins, partners and
// customers.
//
// Dispatcher is the transport contract. Three implementations ship:
//
//   - LogDispatcher writes every notification as a structured slog record.
//   - KafkaDispatcher publishes JSON messages to a Kafka topic.
//   - Guarded wraps another Dispatcher with a per-call timeout and a token
//     bucket rate limit.
//
// Callers use Send, which stamps the notification and logs delivery
// failures as NOTIFICATION_FAILURE. Notification failures never roll back
// the state change that triggered them.
package notify
