package notify

import (
	"context"
	"log/slog"
)

// LogDispatcher writes notifications to a slog logger. It never fails.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher. A nil logger uses slog.Default().
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Notify implements Dispatcher.
func (d *LogDispatcher) Notify(ctx context.Context, n Notification) error {
	d.logger.InfoContext(ctx, "notification",
		"notification_id", n.ID,
		"channel", n.Channel,
		"kind", n.Kind,
		"recipient", n.Recipient,
		"payload", n.Payload,
	)
	return nil
}
