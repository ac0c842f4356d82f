package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "TradeDesk",
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "console",
		},
		Exchange: ExchangeConfig{
			Mode:    "simulated",
			Testnet: true,
			Latency: LatencyConfig{
				Connect:  1500 * time.Millisecond,
				Order:    800 * time.Millisecond,
				Cancel:   600 * time.Millisecond,
				Balances: 700 * time.Millisecond,
				Orders:   700 * time.Millisecond,
			},
			Retry: RetryConfig{MaxRetries: 3},
			Breaker: BreakerConfig{
				FailureRatio: 0.6,
			},
			RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 5},
		},
		Feed: FeedConfig{
			Interval: 2 * time.Second,
			MaxMove:  0.001,
		},
		Favorites: FavoritesConfig{
			Backend: "file",
			Path:    "./data/favorites.yaml",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := getValidConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "missing app name",
			mutate: func(c *Config) { c.App.Name = "" },
			field:  "app.name",
		},
		{
			name:   "unknown environment",
			mutate: func(c *Config) { c.App.Environment = "qa" },
			field:  "app.environment",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.App.LogFormat = "xml" },
			field:  "app.log_format",
		},
		{
			name:   "unknown exchange mode",
			mutate: func(c *Config) { c.Exchange.Mode = "kraken" },
			field:  "exchange.mode",
		},
		{
			name:   "negative intent limit",
			mutate: func(c *Config) { c.API.IntentLimit = -1 },
			field:  "api.intent_limit",
		},
		{
			name:   "negative latency",
			mutate: func(c *Config) { c.Exchange.Latency.Cancel = -time.Second },
			field:  "exchange.latency.cancel",
		},
		{
			name: "binance without rate limit",
			mutate: func(c *Config) {
				c.Exchange.Mode = "binance"
				c.Exchange.RateLimit.RequestsPerSecond = 0
			},
			field: "exchange.rate_limit.requests_per_second",
		},
		{
			name: "binance testnet in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Exchange.Mode = "binance"
			},
			field: "exchange.testnet",
		},
		{
			name:   "zero feed interval",
			mutate: func(c *Config) { c.Feed.Interval = 0 },
			field:  "feed.interval",
		},
		{
			name:   "feed move out of range",
			mutate: func(c *Config) { c.Feed.MaxMove = 1.5 },
			field:  "feed.max_move",
		},
		{
			name:   "file backend without path",
			mutate: func(c *Config) { c.Favorites.Path = "" },
			field:  "favorites.path",
		},
		{
			name:   "redis backend without redis",
			mutate: func(c *Config) { c.Favorites.Backend = "redis" },
			field:  "favorites.backend",
		},
		{
			name: "enabled redis with bad port",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Port = 70000
			},
			field: "redis.port",
		},
		{
			name: "enabled nats with bad scheme",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.URL = "http://localhost:4222"
			},
			field: "nats.url",
		},
		{
			name:   "metrics port clashes with api port",
			mutate: func(c *Config) { c.Monitoring.PrometheusPort = 8081 },
			field:  "monitoring.prometheus_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)

			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Empty(t, ValidationErrors{}.Error())

	errs := ValidationErrors{
		{Field: "feed.interval", Message: "Feed interval must be greater than 0"},
		{Field: "api.port", Message: "Invalid port 0"},
	}
	msg := errs.Error()
	assert.Contains(t, msg, "2 error(s)")
	assert.Contains(t, msg, "1. feed.interval")
	assert.Contains(t, msg, "2. api.port")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// An explicit path that does not exist is a read error, not a silent default
	require.Error(t, err)
	assert.Nil(t, cfg)

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "TradeDesk", cfg.App.Name)
	assert.Equal(t, "simulated", cfg.Exchange.Mode)
	assert.Equal(t, 1500*time.Millisecond, cfg.Exchange.Latency.Connect)
	assert.Equal(t, 800*time.Millisecond, cfg.Exchange.Latency.Order)
	assert.Equal(t, 2*time.Second, cfg.Feed.Interval)
	assert.InDelta(t, 0.001, cfg.Feed.MaxMove, 1e-12)
	assert.Equal(t, "file", cfg.Favorites.Backend)
	assert.Equal(t, 8081, cfg.API.Port)
	assert.Equal(t, 30, cfg.API.IntentLimit)
	assert.Equal(t, time.Minute, cfg.API.IntentWindow)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  name: DeskUnderTest
feed:
  interval: 500ms
favorites:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("TRADEDESK_API_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DeskUnderTest", cfg.App.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, "memory", cfg.Favorites.Backend)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exchange:\n  mode: nowhere\n"), 0o600))

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "exchange.mode")
}

func TestGetAddrs(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.GetRedisAddr())

	a := APIConfig{Host: "127.0.0.1", Port: 8081}
	assert.Equal(t, "127.0.0.1:8081", a.GetAPIAddr())
}
