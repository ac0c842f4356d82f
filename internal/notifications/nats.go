package notifications

import (
	"context"
	"fmt"
)

// Publisher is the part of the event bus a NATSNotifier needs
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// NATSNotifier publishes every notification on notifications.<operation>
type NATSNotifier struct {
	pub Publisher
}

// NewNATSNotifier creates a notifier publishing through pub
func NewNATSNotifier(pub Publisher) *NATSNotifier {
	return &NATSNotifier{pub: pub}
}

// Topic is the bus topic used for op
func Topic(op Operation) string {
	return "notifications." + string(op)
}

// Notify implements Notifier
func (n *NATSNotifier) Notify(ctx context.Context, note Notification) error {
	if err := n.pub.Publish(ctx, Topic(note.Operation), note); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Name implements Notifier
func (n *NATSNotifier) Name() string {
	return "nats"
}
