package exchange

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradedesk/internal/config"
)

// BalanceJitter bounds the relative move of a balance on every fetch (±0.5%)
var BalanceJitter = decimal.RequireFromString("0.005")

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay is a Sleeper for tests; it only honours cancellation
func NoDelay(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// SimulatedGateway synthesizes a derivatives venue locally. It never fails
// once a request is past validation; every call only waits for its latency.
type SimulatedGateway struct {
	mu sync.Mutex

	latency config.LatencyConfig
	sleep   Sleeper
	rng     *rand.Rand
	now     func() time.Time

	connected bool
	balances  []Balance
	resting   map[string]Order // exchange order id -> order
	issued    map[string]bool  // every exchange order id handed out
}

// SimulatedOption customizes a SimulatedGateway
type SimulatedOption func(*SimulatedGateway)

// WithSleeper replaces the latency sleeper
func WithSleeper(s Sleeper) SimulatedOption {
	return func(g *SimulatedGateway) { g.sleep = s }
}

// WithRand fixes the random source
func WithRand(r *rand.Rand) SimulatedOption {
	return func(g *SimulatedGateway) { g.rng = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SimulatedOption {
	return func(g *SimulatedGateway) { g.now = now }
}

// NewSimulatedGateway creates a paper venue with the given latencies
func NewSimulatedGateway(latency config.LatencyConfig, opts ...SimulatedOption) *SimulatedGateway {
	g := &SimulatedGateway{
		latency: latency,
		sleep:   SleepContext,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x7d3a)),
		now:     time.Now,
		resting: make(map[string]Order),
		issued:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}

	log.Info().
		Dur("connect_latency", latency.Connect).
		Dur("order_latency", latency.Order).
		Dur("cancel_latency", latency.Cancel).
		Msg("Simulated exchange initialized (paper trading mode)")

	return g
}

// Name implements Gateway
func (g *SimulatedGateway) Name() string {
	return "simulated"
}

// BaselineBalances is the account every simulated connection starts with
func BaselineBalances() []Balance {
	return []Balance{
		{Asset: "USDT", Total: decimal.RequireFromString("10000.00"), Available: decimal.RequireFromString("10000.00")},
		{Asset: "BTC", Total: decimal.RequireFromString("0.5"), Available: decimal.RequireFromString("0.5")},
		{Asset: "ETH", Total: decimal.RequireFromString("10.0"), Available: decimal.RequireFromString("10.0")},
	}
}

// BaselineOrders are the resting orders every simulated connection starts with
func BaselineOrders(now time.Time) []Order {
	return []Order{
		{
			ExchangeOrderID: "12345",
			Symbol:          "BTCUSDT",
			Kind:            OrderKindLimit,
			Side:            OrderSideBuy,
			Quantity:        decimal.RequireFromString("0.1"),
			LimitPrice:      DecimalPtr(decimal.RequireFromString("25000")),
			Status:          OrderStatusNew,
			CreatedAt:       now.Add(-time.Hour),
		},
		{
			ExchangeOrderID: "12346",
			Symbol:          "ETHUSDT",
			Kind:            OrderKindStopLimit,
			Side:            OrderSideSell,
			Quantity:        decimal.RequireFromString("1.5"),
			LimitPrice:      DecimalPtr(decimal.RequireFromString("1800")),
			StopPrice:       DecimalPtr(decimal.RequireFromString("1810")),
			Status:          OrderStatusNew,
			CreatedAt:       now.Add(-2 * time.Hour),
		},
	}
}

// Connect implements Gateway
func (g *SimulatedGateway) Connect(ctx context.Context, cred Credential) (*Account, error) {
	if !cred.Valid() {
		return nil, NewError(KindInvalidCredential, "connect", "API key and secret are required")
	}

	if err := g.sleep(ctx, g.latency.Connect); err != nil {
		return nil, OperationFailed("connect", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.connected = true
	g.balances = BaselineBalances()
	g.resting = make(map[string]Order)
	for _, o := range BaselineOrders(g.now()) {
		g.resting[o.ExchangeOrderID] = o
		g.issued[o.ExchangeOrderID] = true
	}

	log.Info().
		Str("api_key", config.MaskSecret(cred.APIKey)).
		Int("balances", len(g.balances)).
		Int("resting_orders", len(g.resting)).
		Msg("Simulated exchange session opened")

	return &Account{
		Balances: cloneBalances(g.balances),
		Orders:   g.sortedResting(),
	}, nil
}

// PlaceOrder implements Gateway
func (g *SimulatedGateway) PlaceOrder(ctx context.Context, order Order) (*PlaceOrderResponse, error) {
	if err := g.sleep(ctx, g.latency.Order); err != nil {
		return nil, OperationFailed("place_order", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return nil, NewError(KindInvalidState, "place_order", "not connected")
	}

	id := g.nextOrderID()
	if order.Status == OrderStatusNew {
		order.ExchangeOrderID = id
		g.resting[id] = order.Clone()
	}

	log.Info().
		Str("exchange_order_id", id).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("kind", string(order.Kind)).
		Str("quantity", order.Quantity.String()).
		Str("status", string(order.Status)).
		Msg("Simulated order accepted")

	return &PlaceOrderResponse{
		ExchangeOrderID: id,
		Message:         "Order placed successfully",
	}, nil
}

// CancelOrder implements Gateway
func (g *SimulatedGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if err := g.sleep(ctx, g.latency.Cancel); err != nil {
		return OperationFailed("cancel_order", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	order, exists := g.resting[exchangeOrderID]
	if !exists || order.Symbol != symbol {
		return NewError(KindOrderNotFound, "cancel_order", fmt.Sprintf("order not found: %s", exchangeOrderID))
	}
	delete(g.resting, exchangeOrderID)

	log.Info().
		Str("exchange_order_id", exchangeOrderID).
		Str("symbol", symbol).
		Msg("Simulated order cancelled")

	return nil
}

// FetchBalances implements Gateway. Every fetch moves each balance by a
// bounded random amount around its last value; no asset is ever added.
func (g *SimulatedGateway) FetchBalances(ctx context.Context) ([]Balance, error) {
	if err := g.sleep(ctx, g.latency.Balances); err != nil {
		return nil, OperationFailed("fetch_balances", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return nil, NewError(KindInvalidState, "fetch_balances", "not connected")
	}

	for i, b := range g.balances {
		places := assetPlaces(b.Asset)
		total := jitter(g.rng, b.Total, BalanceJitter, places)
		available := jitter(g.rng, b.Available, BalanceJitter, places)
		if available.GreaterThan(total) {
			available = total
		}
		g.balances[i].Total = total
		g.balances[i].Available = available
	}

	return cloneBalances(g.balances), nil
}

// FetchOpenOrders implements Gateway
func (g *SimulatedGateway) FetchOpenOrders(ctx context.Context) ([]Order, error) {
	if err := g.sleep(ctx, g.latency.Orders); err != nil {
		return nil, OperationFailed("fetch_open_orders", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return nil, NewError(KindInvalidState, "fetch_open_orders", "not connected")
	}

	return g.sortedResting(), nil
}

// Close ends the simulated session; the next Connect reseeds the baseline
func (g *SimulatedGateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.connected = false
	g.balances = nil
	g.resting = make(map[string]Order)
}

// nextOrderID draws a six digit id, skipping ids already issued in this
// process. Callers hold g.mu.
func (g *SimulatedGateway) nextOrderID() string {
	for {
		id := strconv.Itoa(g.rng.IntN(1_000_000))
		if !g.issued[id] {
			g.issued[id] = true
			return id
		}
	}
}

func (g *SimulatedGateway) sortedResting() []Order {
	orders := make([]Order, 0, len(g.resting))
	for _, o := range g.resting {
		orders = append(orders, o.Clone())
	}
	slices.SortFunc(orders, func(a, b Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ExchangeOrderID < b.ExchangeOrderID {
			return -1
		}
		if a.ExchangeOrderID > b.ExchangeOrderID {
			return 1
		}
		return 0
	})
	return orders
}

// jitter moves value by a uniform factor in [-bound, +bound] and rounds the
// result toward the original value, so the move never exceeds the bound.
func jitter(rng *rand.Rand, value, bound decimal.Decimal, places int32) decimal.Decimal {
	factor := decimal.NewFromFloat(rng.Float64()*2 - 1).Mul(bound)
	delta := value.Mul(factor).Truncate(places)
	return value.Add(delta)
}

// assetPlaces is the display precision of an asset
func assetPlaces(asset string) int32 {
	switch asset {
	case "USDT", "USDC", "BUSD":
		return 2
	default:
		return 8
	}
}

func cloneBalances(in []Balance) []Balance {
	out := make([]Balance, len(in))
	copy(out, in)
	return out
}
