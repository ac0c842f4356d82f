package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for configuration validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check Redis/NATS connectivity
	VerifyExchange     bool // Ping the live exchange
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		VerifyExchange:     false, // enabled with -verify-exchange
		Timeout:            5 * time.Second,
	}
}

// Validator checks that the environment can actually serve the
// configuration, beyond the static checks of Config.Validate
type Validator struct {
	config  *Config
	options ValidatorOptions

	// pingExchange is swapped in tests
	pingExchange func(ctx context.Context, cfg ExchangeConfig) error
}

// NewValidator creates a new configuration validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{
		config:       config,
		options:      options,
		pingExchange: pingFutures,
	}
}

// ValidateStartup runs every enabled check. It should be called before
// starting any services.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if err := v.validateProductionRequirements(); err != nil {
		return fmt.Errorf("production requirements validation failed: %w", err)
	}

	if v.options.VerifyConnectivity {
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return fmt.Errorf("redis connectivity check failed: %w", err)
		}
		if err := v.checkNATSConnectivity(); err != nil {
			return fmt.Errorf("nats connectivity check failed: %w", err)
		}
	}

	if v.options.VerifyExchange && v.config.Exchange.Mode == "binance" {
		if err := v.verifyExchange(ctx); err != nil {
			return fmt.Errorf("exchange verification failed: %w", err)
		}
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// validateProductionRequirements rejects unsafe settings when
// app.environment is production
func (v *Validator) validateProductionRequirements() error {
	env := strings.ToLower(v.config.App.Environment)
	if env != "production" && env != "prod" {
		log.Debug().Str("environment", env).Msg("Non-production environment, skipping production requirements")
		return nil
	}

	var problems []string

	if v.config.Exchange.Mode == "binance" {
		if !v.config.Exchange.Testnet {
			log.Warn().Msg("WARNING: Live trading is enabled in production. Ensure this is intentional and all testing is complete.")
		}
		if v.config.Exchange.APIKey != "" && isPlaceholderValue(v.config.Exchange.APIKey) {
			problems = append(problems, "exchange.api_key cannot be a placeholder value in production")
		}
		if v.config.Exchange.SecretKey != "" && isPlaceholderValue(v.config.Exchange.SecretKey) {
			problems = append(problems, "exchange.secret_key cannot be a placeholder value in production")
		}
	}

	if v.config.Favorites.Backend == "memory" {
		problems = append(problems, "favorites.backend 'memory' loses favorites on restart; use 'file' or 'redis' in production")
	}

	for _, origin := range v.config.API.AllowOrigins {
		if origin == "*" {
			problems = append(problems, "api.allow_origins cannot contain '*' in production")
		}
	}

	if len(problems) == 0 {
		log.Info().Msg("Production requirements validated successfully")
		return nil
	}

	var msg strings.Builder
	msg.WriteString("production requirements not met:\n")
	for i, p := range problems {
		msg.WriteString(fmt.Sprintf("  %d. %s\n", i+1, p))
	}
	return fmt.Errorf("%s", msg.String())
}

// checkRedisConnectivity pings Redis when it is enabled
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	if !v.config.Redis.Enabled {
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis at %s: %w", v.config.Redis.GetRedisAddr(), err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("Redis connectivity check passed")
	return nil
}

// checkNATSConnectivity dials NATS once when it is enabled
func (v *Validator) checkNATSConnectivity() error {
	if !v.config.NATS.Enabled {
		return nil
	}

	nc, err := nats.Connect(v.config.NATS.URL, nats.Timeout(v.options.Timeout), nats.Name("tradedesk-validator"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", v.config.NATS.URL, err)
	}
	nc.Close()

	log.Info().Str("url", v.config.NATS.URL).Msg("NATS connectivity check passed")
	return nil
}

// verifyExchange checks the venue is reachable with an unauthenticated ping
func (v *Validator) verifyExchange(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	if err := v.pingExchange(reqCtx, v.config.Exchange); err != nil {
		return fmt.Errorf("failed to ping Binance Futures: %w (check network connectivity)", err)
	}

	log.Info().Bool("testnet", v.config.Exchange.Testnet).Msg("Binance Futures connectivity verified")
	return nil
}

func pingFutures(ctx context.Context, cfg ExchangeConfig) error {
	futures.UseTestnet = cfg.Testnet
	return futures.NewClient("", "").NewPingService().Do(ctx)
}

// isPlaceholderValue checks if a value is likely a placeholder
func isPlaceholderValue(value string) bool {
	lowerValue := strings.ToLower(value)
	placeholders := []string{
		"your_api_key",
		"your_secret",
		"changeme",
		"placeholder",
		"example",
	}

	for _, placeholder := range placeholders {
		if strings.Contains(lowerValue, placeholder) {
			return true
		}
	}

	return false
}
