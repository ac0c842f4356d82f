package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "CRITICAL" // Venue unusable until someone looks at it
	AlertSeverityWarning  AlertSeverity = "WARNING"  // Transient venue failure
	AlertSeverityInfo     AlertSeverity = "INFO"
)

// AlertCategory represents the category of an alert
type AlertCategory string

const (
	AlertCategoryConnection     AlertCategory = "CONNECTION"
	AlertCategoryOrderPlacement AlertCategory = "ORDER_PLACEMENT"
	AlertCategoryOrderCancel    AlertCategory = "ORDER_CANCEL"
	AlertCategoryAccountQuery   AlertCategory = "ACCOUNT_QUERY"
	AlertCategoryCircuitBreaker AlertCategory = "CIRCUIT_BREAKER"
)

// Alert represents a gateway failure with structured context
type Alert struct {
	Severity  AlertSeverity          `json:"severity"`
	Category  AlertCategory          `json:"category"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// AlertManager writes gateway alerts to the log
type AlertManager struct {
	logger zerolog.Logger
}

// NewAlertManager creates an alert manager on the global logger
func NewAlertManager() *AlertManager {
	return NewAlertManagerWithLogger(log.Logger)
}

// NewAlertManagerWithLogger creates an alert manager on the given logger
func NewAlertManagerWithLogger(logger zerolog.Logger) *AlertManager {
	return &AlertManager{logger: logger.With().Str("component", "exchange_alerts").Logger()}
}

// SendAlert logs an alert at the level its severity maps to
func (am *AlertManager) SendAlert(_ context.Context, alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	logCtx := am.logger.With().
		Str("severity", string(alert.Severity)).
		Str("category", string(alert.Category)).
		Time("timestamp", alert.Timestamp)

	for key, value := range alert.Context {
		logCtx = logCtx.Interface(key, value)
	}
	if alert.Error != nil {
		logCtx = logCtx.Err(alert.Error)
	}

	logger := logCtx.Logger()

	switch alert.Severity {
	case AlertSeverityWarning:
		logger.Warn().Msg(alert.Message)
	case AlertSeverityInfo:
		logger.Info().Msg(alert.Message)
	default:
		logger.Error().Msg(alert.Message)
	}
}

// severityFor downgrades transient failures to warnings
func severityFor(err error) AlertSeverity {
	if IsRetryable(err) {
		return AlertSeverityWarning
	}
	return AlertSeverityCritical
}

// AlertConnectionFailed creates an alert for a failed connect
func AlertConnectionFailed(err error, venue string) Alert {
	return Alert{
		Severity: AlertSeverityCritical,
		Category: AlertCategoryConnection,
		Message:  "Failed to connect to exchange",
		Error:    err,
		Context: map[string]interface{}{
			"exchange": venue,
		},
	}
}

// AlertOrderPlacementFailed creates an alert for order placement failures
func AlertOrderPlacementFailed(err error, symbol string, side OrderSide, quantity decimal.Decimal, kind OrderKind) Alert {
	return Alert{
		Severity: severityFor(err),
		Category: AlertCategoryOrderPlacement,
		Message:  "Failed to place order",
		Error:    err,
		Context: map[string]interface{}{
			"symbol":     symbol,
			"side":       string(side),
			"quantity":   quantity.String(),
			"order_kind": string(kind),
		},
	}
}

// AlertOrderCancellationFailed creates an alert for order cancellation failures
func AlertOrderCancellationFailed(err error, symbol, exchangeOrderID string) Alert {
	return Alert{
		Severity: severityFor(err),
		Category: AlertCategoryOrderCancel,
		Message:  "Failed to cancel order",
		Error:    err,
		Context: map[string]interface{}{
			"symbol":            symbol,
			"exchange_order_id": exchangeOrderID,
		},
	}
}

// AlertAccountQueryFailed creates an alert for balance or open-order fetch failures
func AlertAccountQueryFailed(err error, query string) Alert {
	return Alert{
		Severity: AlertSeverityWarning,
		Category: AlertCategoryAccountQuery,
		Message:  "Failed to query account",
		Error:    err,
		Context: map[string]interface{}{
			"query": query,
		},
	}
}

// AlertCircuitStateChanged creates an alert for a breaker transition
func AlertCircuitStateChanged(name, from, to string) Alert {
	severity := AlertSeverityInfo
	if to == "open" {
		severity = AlertSeverityCritical
	}
	return Alert{
		Severity: severity,
		Category: AlertCategoryCircuitBreaker,
		Message:  "Exchange circuit breaker changed state",
		Context: map[string]interface{}{
			"breaker": name,
			"from":    from,
			"to":      to,
		},
	}
}
