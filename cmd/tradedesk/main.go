package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tradedesk/internal/api"
	"github.com/ajitpratap0/tradedesk/internal/bus"
	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/favorites"
	"github.com/ajitpratap0/tradedesk/internal/market"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
	"github.com/ajitpratap0/tradedesk/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to ./configs/config.yaml)")
	verifyExchange := flag.Bool("verify-exchange", false, "Ping the live exchange during startup validation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("version", config.GetVersion()).
		Str("environment", cfg.App.Environment).
		Str("exchange", cfg.Exchange.Mode).
		Msg("Starting TradeDesk")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := config.DefaultValidatorOptions()
	opts.VerifyExchange = *verifyExchange
	if err := config.NewValidator(cfg, opts).ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("TradeDesk stopped with error")
	}
	log.Info().Msg("TradeDesk stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	feed := market.NewFeed(cfg.Feed)
	hub := api.NewHub()
	inbox := notifications.NewInbox(notifications.DefaultInboxSize)

	notifier := notifications.NewMulti(notifications.NewLogNotifier(), inbox, hub)
	feed.AddSink(hub)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()

		cache := market.NewRedisPriceCache(redisClient, cfg.Redis.PriceTTL)
		restored := feed.Restore(cache.Load(ctx, market.DefaultSymbolNames()))
		feed.AddSink(cache)
		log.Info().Int("restored", restored).Msg("Price cache attached")
	}

	if cfg.NATS.Enabled {
		eventBus, err := bus.Connect(cfg.NATS, "tradedesk")
		if err != nil {
			return err
		}
		defer func() { _ = eventBus.Close() }()

		feed.AddSink(market.NewBusSink(eventBus, "prices"))
		notifier.Add(notifications.NewNATSNotifier(eventBus))
	}

	favBackend, err := favoritesBackend(cfg, redisClient)
	if err != nil {
		return err
	}
	favs, err := favorites.Open(ctx, favBackend, notifier)
	if err != nil {
		return err
	}

	sess := session.New(newGateway(cfg), feed, notifier)
	hub.SetSnapshot(func() interface{} { return sess.Snapshot() })

	server := api.NewServer(api.Config{
		Addr:         cfg.API.GetAPIAddr(),
		Session:      sess,
		Favorites:    favs,
		Inbox:        inbox,
		Hub:          hub,
		AllowOrigins: cfg.API.AllowOrigins,
		IntentLimit:  cfg.API.IntentLimit,
		IntentWindow: cfg.API.IntentWindow,
	})

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, config.NewLogger("metrics"))
		if err := metricsServer.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if limiter := server.Limiter(); limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, 5*time.Minute)
			return nil
		})
	}

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := sess.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := server.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newGateway(cfg *config.Config) exchange.Gateway {
	if cfg.Exchange.Mode == "binance" {
		return exchange.NewFuturesGateway(cfg.Exchange)
	}
	return exchange.NewSimulatedGateway(cfg.Exchange.Latency)
}

func favoritesBackend(cfg *config.Config, client *redis.Client) (favorites.Backend, error) {
	switch cfg.Favorites.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("favorites backend 'redis' requires redis.enabled")
		}
		return favorites.NewRedisBackend(client), nil
	case "memory":
		return favorites.NewMemoryBackend(), nil
	default:
		return favorites.NewFileBackend(cfg.Favorites.Path), nil
	}
}
