package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradedesk/internal/config"
)

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Binance error codes worth another attempt
var retryableAPICodes = map[int64]bool{
	-1001: true, // Internal error; unable to process your request
	-1003: true, // Too many requests
	-1007: true, // Timeout waiting for response from backend server
	-1015: true, // Too many new orders
	-1021: true, // Timestamp for this request is outside of the recvWindow
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"too many requests",
	"rate limit",
}

// IsRetryable checks if an error is retryable. Domain errors and context
// cancellation never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return retryableAPICodes[apiErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range retryableMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// WithRetry executes an operation with exponential backoff retry
func WithRetry(ctx context.Context, cfg config.RetryConfig, operation RetryableOperation) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				log.Info().
					Int("attempt", attempt+1).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			log.Debug().
				Err(err).
				Msg("Error is not retryable, aborting")
			return err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxRetries+1).
			Dur("backoff", backoff).
			Msg("Operation failed, retrying with backoff")

		if err := SleepContext(ctx, backoff); err != nil {
			return fmt.Errorf("operation cancelled during backoff: %w", err)
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}
