// Package bus publishes session events over NATS
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradedesk/internal/config"
)

const defaultPrefix = "tradedesk."

// Bus is a thin NATS publisher/subscriber with a subject prefix
type Bus struct {
	nc     *nats.Conn
	prefix string
	source string
}

// Envelope wraps every published payload
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Source    string          `json:"source"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler is a callback for received envelopes
type Handler func(env *Envelope) error

// Connect dials NATS. The connection reconnects forever.
func Connect(cfg config.NATSConfig, source string) (*Bus, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(source),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	log.Info().
		Str("nats_url", cfg.URL).
		Str("prefix", prefix).
		Msg("Event bus connected")

	return &Bus{nc: nc, prefix: prefix, source: source}, nil
}

// Subject is the full NATS subject for topic
func (b *Bus) Subject(topic string) string {
	return b.prefix + topic
}

// Publish marshals payload into an envelope and publishes it on topic
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	env := Envelope{
		ID:        uuid.New(),
		Source:    b.source,
		Topic:     topic,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	subject := b.Subject(topic)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Debug().
		Str("message_id", env.ID.String()).
		Str("subject", subject).
		Msg("Published event")

	return nil
}

// Subscribe delivers envelopes published on topic. NATS wildcards are
// allowed ("notifications.>").
func (b *Bus) Subscribe(topic string, handler Handler) (*nats.Subscription, error) {
	subject := b.Subject(topic)

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal event")
			return
		}
		if err := handler(&env); err != nil {
			log.Error().
				Err(err).
				Str("message_id", env.ID.String()).
				Str("subject", msg.Subject).
				Msg("Event handler error")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to events")
	return sub, nil
}

// Flush waits until the server has processed everything published so far
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Connected reports the connection state
func (b *Bus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close drains the connection
func (b *Bus) Close() error {
	if b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	log.Info().Msg("Event bus closed")
	return nil
}
