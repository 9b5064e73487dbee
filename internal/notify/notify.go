package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/fulfil/internal/domain"
)

// Channel is the audience of a notification.
type Channel string

const (
	ChannelAdmin    Channel = "admin"
	ChannelPartner  Channel = "partner"
	ChannelCustomer Channel = "customer"
)

// Notification kinds.
const (
	KindLowStock            = "low_stock"
	KindOutOfStock          = "out_of_stock"
	KindInventoryAdjustment = "inventory_adjustment"
	KindAutomationAlert     = "automation_alert"
	KindEmail               = "email"
	KindTask                = "task"
	KindOrderCreated        = "order_created"
	KindPaymentFailed       = "payment_failed"
)

// OrderKind returns the kind of the customer notification sent when an
// order enters status.
func OrderKind(status domain.OrderStatus) string {
	return "order_" + string(status)
}

// Notification is one message for a channel.
type Notification struct {
	ID        string         `json:"id"`
	Channel   Channel        `json:"channel"`
	Kind      string         `json:"kind"`
	Recipient string         `json:"recipient,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, n Notification) error

// Notify calls f(ctx, n).
func (f DispatcherFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Sender stamps outgoing notifications and logs delivery failures.
type Sender struct {
	dispatcher Dispatcher
	ids        domain.IDGenerator
	now        func() time.Time
	logger     *slog.Logger
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithIDGenerator sets the generator used for notification IDs.
func WithIDGenerator(ids domain.IDGenerator) SenderOption {
	return func(s *Sender) {
		s.ids = ids
	}
}

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		s.now = now
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = logger
	}
}

// NewSender creates a Sender over d.
func NewSender(d Dispatcher, opts ...SenderOption) *Sender {
	s := &Sender{
		dispatcher: d,
		ids:        domain.UUIDv7Generator{},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers n. ID and CreatedAt are filled in when empty.
//
// A delivery failure is logged and returned as a NOTIFICATION_FAILURE
// error. Most callers ignore the returned error; the rule engine records
// it in its report.
func (s *Sender) Send(ctx context.Context, n Notification) error {
	if s == nil || s.dispatcher == nil {
		return nil
	}
	if n.ID == "" {
		n.ID = s.ids.Generate()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	if err := s.dispatcher.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed",
			"notification_id", n.ID,
			"channel", n.Channel,
			"kind", n.Kind,
			"recipient", n.Recipient,
			"error", err,
		)
		return domain.NewNotificationFailure(n.Kind, err)
	}

	s.logger.Debug("notification sent",
		"notification_id", n.ID,
		"channel", n.Channel,
		"kind", n.Kind,
	)
	return nil
}
