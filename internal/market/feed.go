package market

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
)

const sinkTimeout = 2 * time.Second

// PriceSink receives a copy of every snapshot the feed produces
type PriceSink interface {
	Name() string
	PublishPrices(ctx context.Context, prices []SymbolPrice) error
}

// Feed evolves simulated prices on a fixed interval while it is running.
// The ticker goroutine is bound to the context given to Start and is gone
// by the time Stop returns; no tick mutates prices after that.
type Feed struct {
	mu      sync.RWMutex
	specs   []SymbolSpec
	prices  map[string]SymbolPrice
	rng     *rand.Rand
	now     func() time.Time
	running bool

	interval time.Duration
	maxMove  decimal.Decimal

	sinks []PriceSink

	lifecycle sync.Mutex // serializes Start and Stop
	cancel    context.CancelFunc
	done      chan struct{}

	log zerolog.Logger
}

// FeedOption customizes a Feed
type FeedOption func(*Feed)

// WithRand fixes the random source
func WithRand(r *rand.Rand) FeedOption {
	return func(f *Feed) { f.rng = r }
}

// WithSymbols replaces the tracked symbols
func WithSymbols(specs ...SymbolSpec) FeedOption {
	return func(f *Feed) { f.specs = specs }
}

// WithSinks registers price sinks
func WithSinks(sinks ...PriceSink) FeedOption {
	return func(f *Feed) { f.sinks = append(f.sinks, sinks...) }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// NewFeed creates a stopped feed seeded at the symbol baselines
func NewFeed(cfg config.FeedConfig, opts ...FeedOption) *Feed {
	f := &Feed{
		specs:    DefaultSymbols,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:      time.Now,
		interval: cfg.Interval,
		maxMove:  decimal.NewFromFloat(cfg.MaxMove),
		log:      config.NewLogger("price_feed"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.interval <= 0 {
		f.interval = 2 * time.Second
	}

	f.prices = make(map[string]SymbolPrice, len(f.specs))
	for _, s := range f.specs {
		f.prices[s.Symbol] = SymbolPrice{
			Symbol:    s.Symbol,
			Price:     s.Baseline,
			Direction: DirectionFlat,
		}
	}

	return f
}

// AddSink registers a sink after construction
func (f *Feed) AddSink(s PriceSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Start launches the ticker. Starting a running feed is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go f.run(runCtx, f.done)

	f.log.Info().
		Dur("interval", f.interval).
		Str("max_move", f.maxMove.String()).
		Int("symbols", len(f.specs)).
		Msg("Price feed started")
}

// Stop halts the ticker and waits for its goroutine to exit. It is safe to
// call on a stopped feed.
func (f *Feed) Stop() {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	f.mu.Lock()
	wasRunning := f.running
	f.running = false
	f.mu.Unlock()

	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.cancel = nil
	f.done = nil

	if wasRunning {
		f.log.Info().Msg("Price feed stopped")
	}
}

// Running reports whether the feed is ticking
func (f *Feed) Running() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// the parent context may end without Stop being called
			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
			return
		case <-ticker.C:
			if snapshot, ok := f.apply(); ok {
				f.publish(ctx, snapshot)
			}
		}
	}
}

// Tick applies a single tick if the feed is running and reports whether
// it did. Sinks are notified synchronously.
func (f *Feed) Tick() bool {
	snapshot, ok := f.apply()
	if ok {
		f.publish(context.Background(), snapshot)
	}
	return ok
}

// apply moves every price by a uniform random fraction of at most maxMove.
// The move is truncated to the symbol precision so it never exceeds the
// bound, and the direction follows the sign of the drawn move.
func (f *Feed) apply() ([]SymbolPrice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return nil, false
	}

	now := f.now()
	for _, s := range f.specs {
		current := f.prices[s.Symbol]

		draw := f.rng.Float64()*2 - 1
		change := current.Price.Mul(f.maxMove).Mul(decimal.NewFromFloat(draw)).Truncate(s.Precision)

		direction := DirectionFlat
		switch {
		case draw > 0:
			direction = DirectionUp
		case draw < 0:
			direction = DirectionDown
		}

		next := current.Price.Add(change)
		f.prices[s.Symbol] = SymbolPrice{
			Symbol:    s.Symbol,
			Price:     next,
			Direction: direction,
			UpdatedAt: now,
		}
		metrics.UpdateLastPrice(s.Symbol, next.InexactFloat64())
	}
	metrics.RecordPriceTick()

	return f.snapshotLocked(), true
}

func (f *Feed) publish(ctx context.Context, snapshot []SymbolPrice) {
	f.mu.RLock()
	sinks := append([]PriceSink(nil), f.sinks...)
	f.mu.RUnlock()

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.PublishPrices(sinkCtx, snapshot)
		cancel()
		if err != nil {
			metrics.RecordPriceSinkError(sink.Name())
			f.log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Msg("Failed to publish prices")
		}
	}
}

// Prices returns a copy of every tracked price in symbol order
func (f *Feed) Prices() []SymbolPrice {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

// Price returns the last price of symbol
func (f *Feed) Price(symbol string) (SymbolPrice, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[symbol]
	return p, ok
}

// Restore seeds tracked symbols with previously published prices, for
// example from the Redis cache at startup. Unknown symbols are ignored.
func (f *Feed) Restore(prices []SymbolPrice) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	restored := 0
	for _, p := range prices {
		if _, tracked := f.prices[p.Symbol]; !tracked || !p.Price.IsPositive() {
			continue
		}
		f.prices[p.Symbol] = p
		restored++
	}
	return restored
}

func (f *Feed) snapshotLocked() []SymbolPrice {
	out := make([]SymbolPrice, 0, len(f.specs))
	for _, s := range f.specs {
		out = append(out, f.prices[s.Symbol])
	}
	return out
}
