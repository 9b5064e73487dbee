package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaDispatcher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes notifications as JSON messages.
//
// Messages are keyed by recipient (channel when there is none) so that all
// notifications for one partner or customer land on one partition in order.
type KafkaDispatcher struct {
	writer messageWriter
	topic  string
}

// NewKafkaDispatcher creates a dispatcher writing to topic on brokers.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		topic: topic,
	}
}

// Notify implements Dispatcher.
func (d *KafkaDispatcher) Notify(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}

	key := n.Recipient
	if key == "" {
		key = string(n.Channel)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
			{Key: "channel", Value: []byte(n.Channel)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification %s to %s: %w", n.ID, d.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
