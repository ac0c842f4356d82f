package session

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/market"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

var validCred = exchange.Credential{APIKey: "k", APISecret: "s"}

// stubGateway wraps a simulated gateway so tests can count calls, inject
// failures and hold a call in flight until released.
type stubGateway struct {
	*exchange.SimulatedGateway

	mu      sync.Mutex
	hold    map[string]chan struct{} // method -> released when closed
	entered chan string
	fail    map[string]error

	connects atomic.Int32
	balances atomic.Int32
	places   atomic.Int32
	cancels  atomic.Int32
	closes   atomic.Int32
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		SimulatedGateway: exchange.NewSimulatedGateway(config.LatencyConfig{},
			exchange.WithSleeper(exchange.NoDelay),
			exchange.WithRand(rand.New(rand.NewPCG(1, 2)))),
		hold:    make(map[string]chan struct{}),
		entered: make(chan string, 16),
		fail:    make(map[string]error),
	}
}

// holdCalls makes every call to method block until the returned func runs
func (g *stubGateway) holdCalls(method string) (release func()) {
	ch := make(chan struct{})
	g.mu.Lock()
	g.hold[method] = ch
	g.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (g *stubGateway) failCalls(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[method] = err
}

func (g *stubGateway) gate(method string) error {
	g.mu.Lock()
	ch := g.hold[method]
	err := g.fail[method]
	g.mu.Unlock()

	if ch != nil {
		g.entered <- method
		<-ch
	}
	return err
}

func (g *stubGateway) Connect(ctx context.Context, cred exchange.Credential) (*exchange.Account, error) {
	g.connects.Add(1)
	if err := g.gate("connect"); err != nil {
		return nil, err
	}
	return g.SimulatedGateway.Connect(ctx, cred)
}

func (g *stubGateway) PlaceOrder(ctx context.Context, order exchange.Order) (*exchange.PlaceOrderResponse, error) {
	g.places.Add(1)
	if err := g.gate("place"); err != nil {
		return nil, err
	}
	return g.SimulatedGateway.PlaceOrder(ctx, order)
}

func (g *stubGateway) CancelOrder(ctx context.Context, symbol, id string) error {
	g.cancels.Add(1)
	if err := g.gate("cancel"); err != nil {
		return err
	}
	return g.SimulatedGateway.CancelOrder(ctx, symbol, id)
}

func (g *stubGateway) FetchBalances(ctx context.Context) ([]exchange.Balance, error) {
	g.balances.Add(1)
	if err := g.gate("balances"); err != nil {
		return nil, err
	}
	return g.SimulatedGateway.FetchBalances(ctx)
}

func (g *stubGateway) Close() {
	g.closes.Add(1)
	_ = g.gate("close")
	g.SimulatedGateway.Close()
}

func (g *stubGateway) waitEntered(t *testing.T, method string) {
	t.Helper()
	select {
	case got := <-g.entered:
		require.Equal(t, method, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("gateway %s was never called", method)
	}
}

type fixture struct {
	session *Session
	gateway *stubGateway
	feed    *market.Feed
	inbox   *notifications.Inbox
}

func newFixture(t *testing.T, feedCfg ...config.FeedConfig) *fixture {
	t.Helper()

	cfg := config.FeedConfig{Interval: time.Hour, MaxMove: 0.001}
	if len(feedCfg) > 0 {
		cfg = feedCfg[0]
	}

	f := &fixture{
		gateway: newStubGateway(),
		feed:    market.NewFeed(cfg, market.WithRand(rand.New(rand.NewPCG(3, 4)))),
		inbox:   notifications.NewInbox(50),
	}
	f.session = New(f.gateway, f.feed, f.inbox)
	t.Cleanup(func() { _ = f.session.Close(context.Background()) })
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.session.Connect(context.Background(), validCred))
	f.inbox.Drain()
}

func (f *fixture) operations() []notifications.Operation {
	var ops []notifications.Operation
	for _, n := range f.inbox.Drain() {
		ops = append(ops, n.Operation)
	}
	return ops
}
