package market

import "context"

// EventPublisher is the part of the event bus the feed needs
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// BusSink publishes every price snapshot on the event bus
type BusSink struct {
	pub   EventPublisher
	topic string
}

// NewBusSink creates a sink publishing on topic ("prices" when empty)
func NewBusSink(pub EventPublisher, topic string) *BusSink {
	if topic == "" {
		topic = "prices"
	}
	return &BusSink{pub: pub, topic: topic}
}

// Name implements PriceSink
func (s *BusSink) Name() string {
	return "nats"
}

// PublishPrices implements PriceSink
func (s *BusSink) PublishPrices(ctx context.Context, prices []SymbolPrice) error {
	return s.pub.Publish(ctx, s.topic, prices)
}
