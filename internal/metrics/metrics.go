package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
const (
	// Exchange API error categories (bounded set)
	ExchangeErrorTimeout     = "timeout"
	ExchangeErrorRateLimit   = "rate_limit"
	ExchangeErrorAuth        = "authentication"
	ExchangeErrorNetwork     = "network"
	ExchangeErrorInvalidReq  = "invalid_request"
	ExchangeErrorServerError = "server_error"
	ExchangeErrorOther       = "other"

	// Connection status gauge values
	StatusDisconnected = 0
	StatusConnecting   = 1
	StatusConnected    = 2
)

// NormalizeExchangeError maps arbitrary error messages to bounded set
func NormalizeExchangeError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ExchangeErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "too many") || strings.Contains(errStr, "429"):
		return ExchangeErrorRateLimit
	case strings.Contains(errStr, "api-key") || strings.Contains(errStr, "signature") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return ExchangeErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return ExchangeErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid") || strings.Contains(errStr, "unknown order"):
		return ExchangeErrorInvalidReq
	case strings.Contains(errStr, "internal") || strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return ExchangeErrorServerError
	default:
		return ExchangeErrorOther
	}
}

// Session Metrics
var (
	// Connection status (0=disconnected, 1=connecting, 2=connected)
	ConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_connection_status",
		Help: "Exchange connection status (0=disconnected, 1=connecting, 2=connected)",
	})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_orders_placed_total",
		Help: "Total orders accepted, by kind, side and initial status",
	}, []string{"kind", "side", "status"})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradedesk_orders_cancelled_total",
		Help: "Total orders cancelled",
	})

	OpenOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_open_orders",
		Help: "Number of resting (NEW) orders in the session",
	})

	OperationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_operation_failures_total",
		Help: "Failed session operations by operation and error kind",
	}, []string{"operation", "kind"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradedesk_operation_duration_ms",
		Help:    "Session operation duration in milliseconds",
		Buckets: []float64{10, 100, 250, 500, 750, 1000, 1500, 2500, 5000},
	}, []string{"operation"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_notifications_total",
		Help: "Notifications emitted by level",
	}, []string{"level"})
)

// Market Metrics
var (
	PriceTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradedesk_price_ticks_total",
		Help: "Total simulated price feed ticks applied",
	})

	LastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradedesk_last_price",
		Help: "Last simulated price per symbol",
	}, []string{"symbol"})

	PriceSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_price_sink_errors_total",
		Help: "Errors publishing price snapshots, by sink",
	}, []string{"sink"})

	FavoritesCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_favorites",
		Help: "Number of favorite symbols",
	})
)

// Exchange Metrics
var (
	ExchangeAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradedesk_exchange_api_latency_ms",
		Help:    "Exchange API call latency in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500},
	}, []string{"exchange", "endpoint"})

	ExchangeAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_exchange_api_errors_total",
		Help: "Total exchange API errors",
	}, []string{"exchange", "error_type"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradedesk_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"breaker"})
)

// System Metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradedesk_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 2500},
	}, []string{"method", "path", "status"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_websocket_clients",
		Help: "Connected WebSocket clients",
	})

	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradedesk_redis_operations_total",
		Help: "Total Redis operations",
	}, []string{"operation"})

	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_redis_cache_hit_rate",
		Help: "Redis cache hit rate (0.0 to 1.0)",
	})
)

// Helper functions to update metrics

// SetConnectionStatus records the session connection status
func SetConnectionStatus(status int) {
	ConnectionStatus.Set(float64(status))
}

// RecordOrderPlaced records an accepted order
func RecordOrderPlaced(kind, side, status string) {
	OrdersPlaced.WithLabelValues(kind, side, status).Inc()
}

// RecordOrderCancelled records a cancelled order
func RecordOrderCancelled() {
	OrdersCancelled.Inc()
}

// SetOpenOrders updates the resting order gauge
func SetOpenOrders(count int) {
	OpenOrders.Set(float64(count))
}

// RecordOperation records a completed session operation. errorKind is
// empty on success.
func RecordOperation(operation string, durationMs float64, errorKind string) {
	OperationDuration.WithLabelValues(operation).Observe(durationMs)
	if errorKind != "" {
		OperationFailures.WithLabelValues(operation, errorKind).Inc()
	}
}

// RecordNotification records an emitted notification
func RecordNotification(level string) {
	NotificationsSent.WithLabelValues(level).Inc()
}

// RecordPriceTick records one applied feed tick
func RecordPriceTick() {
	PriceTicks.Inc()
}

// UpdateLastPrice records the last price of symbol
func UpdateLastPrice(symbol string, price float64) {
	LastPrice.WithLabelValues(symbol).Set(price)
}

// RecordPriceSinkError records a failed price publication
func RecordPriceSinkError(sink string) {
	PriceSinkErrors.WithLabelValues(sink).Inc()
}

// SetFavoritesCount updates the favorites gauge
func SetFavoritesCount(count int) {
	FavoritesCount.Set(float64(count))
}

// RecordExchangeAPICall records an exchange API call with normalized error category
func RecordExchangeAPICall(exchange, endpoint string, durationMs float64, err error) {
	ExchangeAPILatency.WithLabelValues(exchange, endpoint).Observe(durationMs)
	if err != nil {
		ExchangeAPIErrors.WithLabelValues(exchange, NormalizeExchangeError(err)).Inc()
	}
}

// UpdateCircuitBreaker records a breaker state by its name
// ("closed", "half-open" or "open")
func UpdateCircuitBreaker(breaker, state string) {
	var value float64
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(breaker).Set(value)
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// SetWebSocketClients updates the connected WebSocket client gauge
func SetWebSocketClients(count int) {
	WebSocketClients.Set(float64(count))
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}
