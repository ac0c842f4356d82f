package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateExchange()...)
	errors = append(errors, c.validateFeed()...)
	errors = append(errors, c.validateFavorites()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateAPI()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be 'json' or 'console'", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateExchange() ValidationErrors {
	var errors ValidationErrors

	switch strings.ToLower(c.Exchange.Mode) {
	case "simulated":
	case "binance":
		if c.Exchange.RateLimit.RequestsPerSecond <= 0 {
			errors = append(errors, ValidationError{
				Field:   "exchange.rate_limit.requests_per_second",
				Message: "Rate limit must be greater than 0 for a live exchange",
			})
		}
		if c.Exchange.Breaker.FailureRatio <= 0 || c.Exchange.Breaker.FailureRatio > 1 {
			errors = append(errors, ValidationError{
				Field:   "exchange.breaker.failure_ratio",
				Message: fmt.Sprintf("Invalid failure_ratio %.2f. Must be between 0-1", c.Exchange.Breaker.FailureRatio),
			})
		}
		if c.App.Environment == "production" && c.Exchange.Testnet {
			errors = append(errors, ValidationError{
				Field:   "exchange.testnet",
				Message: "Testnet mode must be disabled in production",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "exchange.mode",
			Message: fmt.Sprintf("Invalid exchange mode '%s'. Must be 'simulated' or 'binance'", c.Exchange.Mode),
		})
	}

	latencies := []struct {
		field string
		value time.Duration
	}{
		{"exchange.latency.connect", c.Exchange.Latency.Connect},
		{"exchange.latency.order", c.Exchange.Latency.Order},
		{"exchange.latency.cancel", c.Exchange.Latency.Cancel},
		{"exchange.latency.balances", c.Exchange.Latency.Balances},
		{"exchange.latency.orders", c.Exchange.Latency.Orders},
	}
	for _, l := range latencies {
		if l.value < 0 {
			errors = append(errors, ValidationError{
				Field:   l.field,
				Message: "Latency must be non-negative",
			})
		}
	}

	if c.Exchange.Retry.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "exchange.retry.max_retries",
			Message: "Max retries must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateFeed() ValidationErrors {
	var errors ValidationErrors

	if c.Feed.Interval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "feed.interval",
			Message: "Feed interval must be greater than 0",
		})
	}

	if c.Feed.MaxMove <= 0 || c.Feed.MaxMove >= 1 {
		errors = append(errors, ValidationError{
			Field:   "feed.max_move",
			Message: fmt.Sprintf("Invalid max_move %.4f. Must be between 0-1 (exclusive)", c.Feed.MaxMove),
		})
	}

	return errors
}

func (c *Config) validateFavorites() ValidationErrors {
	var errors ValidationErrors

	switch c.Favorites.Backend {
	case "memory":
	case "file":
		if c.Favorites.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "favorites.path",
				Message: "Favorites path is required for the file backend",
			})
		}
	case "redis":
		if !c.Redis.Enabled {
			errors = append(errors, ValidationError{
				Field:   "favorites.backend",
				Message: "Redis backend requires redis.enabled=true",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "favorites.backend",
			Message: fmt.Sprintf("Invalid favorites backend '%s'. Must be 'file', 'redis' or 'memory'", c.Favorites.Backend),
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	if c.API.IntentLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "api.intent_limit",
			Message: "Must be non-negative (0 disables the limit)",
		})
	}

	if c.Monitoring.EnableMetrics && (c.Monitoring.PrometheusPort < 1 || c.Monitoring.PrometheusPort > 65535) {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Monitoring.PrometheusPort),
		})
	}

	if c.Monitoring.EnableMetrics && c.Monitoring.PrometheusPort == c.API.Port {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: "Metrics port must differ from the API port",
		})
	}

	return errors
}
