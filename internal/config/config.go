package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Favorites  FavoritesConfig  `mapstructure:"favorites"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// ExchangeConfig selects and tunes the exchange gateway
type ExchangeConfig struct {
	Mode      string          `mapstructure:"mode"` // "simulated" or "binance"
	APIKey    string          `mapstructure:"api_key"`
	SecretKey string          `mapstructure:"secret_key"`
	Testnet   bool            `mapstructure:"testnet"`
	Latency   LatencyConfig   `mapstructure:"latency"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// LatencyConfig holds the artificial delays of the simulated gateway
type LatencyConfig struct {
	Connect  time.Duration `mapstructure:"connect"`
	Order    time.Duration `mapstructure:"order"`
	Cancel   time.Duration `mapstructure:"cancel"`
	Balances time.Duration `mapstructure:"balances"`
	Orders   time.Duration `mapstructure:"orders"`
}

// RetryConfig configures exponential backoff for live gateway calls
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
}

// BreakerConfig configures the circuit breaker around live gateway calls
type BreakerConfig struct {
	MinRequests     uint32        `mapstructure:"min_requests"`
	FailureRatio    float64       `mapstructure:"failure_ratio"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxReqs uint32        `mapstructure:"half_open_max_requests"`
	CountInterval   time.Duration `mapstructure:"count_interval"`
}

// RateLimitConfig bounds the request rate towards a live exchange
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// FeedConfig tunes the simulated price feed
type FeedConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxMove  float64       `mapstructure:"max_move"` // 0.001 = 0.1% per tick
}

// FavoritesConfig selects where favorite symbols are persisted
type FavoritesConfig struct {
	Backend string `mapstructure:"backend"` // "file", "redis" or "memory"
	Path    string `mapstructure:"path"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	IntentLimit  int           `mapstructure:"intent_limit"` // mutating requests per IP per window; 0 disables
	IntentWindow time.Duration `mapstructure:"intent_window"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// TRADEDESK_EXCHANGE_API_KEY overrides exchange.api_key
	v.SetEnvPrefix("TRADEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "TradeDesk")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Exchange defaults (simulated venue latencies)
	v.SetDefault("exchange.mode", "simulated")
	v.SetDefault("exchange.testnet", true)
	v.SetDefault("exchange.latency.connect", 1500*time.Millisecond)
	v.SetDefault("exchange.latency.order", 800*time.Millisecond)
	v.SetDefault("exchange.latency.cancel", 600*time.Millisecond)
	v.SetDefault("exchange.latency.balances", 700*time.Millisecond)
	v.SetDefault("exchange.latency.orders", 700*time.Millisecond)
	v.SetDefault("exchange.retry.max_retries", 3)
	v.SetDefault("exchange.retry.initial_backoff", 100*time.Millisecond)
	v.SetDefault("exchange.retry.max_backoff", 5*time.Second)
	v.SetDefault("exchange.retry.backoff_factor", 2.0)
	v.SetDefault("exchange.breaker.min_requests", 5)
	v.SetDefault("exchange.breaker.failure_ratio", 0.6)
	v.SetDefault("exchange.breaker.open_timeout", 30*time.Second)
	v.SetDefault("exchange.breaker.half_open_max_requests", 3)
	v.SetDefault("exchange.breaker.count_interval", 10*time.Second)
	v.SetDefault("exchange.rate_limit.requests_per_second", 10.0)
	v.SetDefault("exchange.rate_limit.burst", 5)

	// Feed defaults
	v.SetDefault("feed.interval", 2*time.Second)
	v.SetDefault("feed.max_move", 0.001)

	// Favorites defaults
	v.SetDefault("favorites.backend", "file")
	v.SetDefault("favorites.path", "./data/favorites.yaml")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_ttl", 60*time.Second)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "tradedesk.")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.intent_limit", 30)
	v.SetDefault("api.intent_window", time.Minute)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
