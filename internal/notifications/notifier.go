// Package notifications delivers one transient message per operation outcome
package notifications

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradedesk/internal/config"
)

// Notifier delivers notifications to one destination
type Notifier interface {
	// Notify delivers n
	Notify(ctx context.Context, n Notification) error

	// Name returns the destination name
	Name() string
}

// LogNotifier writes every notification to the structured log
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier backed by the component logger
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: config.NewLogger("notifications")}
}

// NewLogNotifierWithLogger creates a notifier writing to logger
func NewLogNotifierWithLogger(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "notifications").Logger()}
}

// Notify implements Notifier
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	var event *zerolog.Event
	switch n.Level {
	case LevelError:
		event = l.log.Error()
	case LevelWarning:
		event = l.log.Warn()
	default:
		event = l.log.Info()
	}

	event = event.
		Str("notification_id", n.ID).
		Str("level", string(n.Level)).
		Str("operation", string(n.Operation))
	for k, v := range n.Data {
		event = event.Str(k, v)
	}
	event.Msg(n.Message)

	return nil
}

// Name implements Notifier
func (l *LogNotifier) Name() string {
	return "log"
}

// Multi fans a notification out to several notifiers
type Multi struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewMulti creates a fan-out notifier; nil entries are skipped
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{log: config.NewLogger("notifications")}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// WithLogger replaces the logger used to report failed deliveries
func (m *Multi) WithLogger(logger zerolog.Logger) *Multi {
	m.log = logger.With().Str("component", "notifications").Logger()
	return m
}

// Add registers another destination
func (m *Multi) Add(n Notifier) {
	if n != nil {
		m.notifiers = append(m.notifiers, n)
	}
}

// Notify delivers to every destination. It only fails if every destination
// failed.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	var lastErr error
	sent := 0
	for _, dest := range m.notifiers {
		if err := dest.Notify(ctx, n); err != nil {
			m.log.Warn().
				Err(err).
				Str("destination", dest.Name()).
				Str("operation", string(n.Operation)).
				Msg("Failed to deliver notification")
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("failed to deliver to any destination: %w", lastErr)
	}
	return nil
}

// Name implements Notifier
func (m *Multi) Name() string {
	return "multi"
}

// Discard drops every notification
type Discard struct{}

// Notify implements Notifier
func (Discard) Notify(context.Context, Notification) error { return nil }

// Name implements Notifier
func (Discard) Name() string { return "discard" }
