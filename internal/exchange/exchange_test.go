package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradedesk/internal/config"
)

var testCred = Credential{APIKey: "test-key", APISecret: "test-secret"}

func newTestGateway(t *testing.T) *SimulatedGateway {
	t.Helper()
	return NewSimulatedGateway(config.LatencyConfig{},
		WithSleeper(NoDelay),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
}

func TestSimulatedGateway_ConnectSeedsBaseline(t *testing.T) {
	g := newTestGateway(t)

	account, err := g.Connect(context.Background(), testCred)
	require.NoError(t, err)

	require.Len(t, account.Balances, 3)
	assert.Equal(t, "USDT", account.Balances[0].Asset)
	assert.True(t, account.Balances[0].Total.Equal(decimal.RequireFromString("10000")))
	assert.Equal(t, "BTC", account.Balances[1].Asset)
	assert.True(t, account.Balances[1].Total.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "ETH", account.Balances[2].Asset)
	assert.True(t, account.Balances[2].Total.Equal(decimal.RequireFromString("10")))

	require.Len(t, account.Orders, 2)
	// oldest first
	assert.Equal(t, "12346", account.Orders[0].ExchangeOrderID)
	assert.Equal(t, OrderKindStopLimit, account.Orders[0].Kind)
	assert.True(t, account.Orders[0].StopPrice.Equal(decimal.RequireFromString("1810")))
	assert.Equal(t, "12345", account.Orders[1].ExchangeOrderID)
	assert.Equal(t, OrderKindLimit, account.Orders[1].Kind)
	for _, o := range account.Orders {
		assert.Equal(t, OrderStatusNew, o.Status)
	}
}

func TestSimulatedGateway_RejectsEmptyCredential(t *testing.T) {
	g := newTestGateway(t)

	tests := []Credential{
		{},
		{APIKey: "key"},
		{APISecret: "secret"},
		{APIKey: "   ", APISecret: "secret"},
	}
	for _, cred := range tests {
		_, err := g.Connect(context.Background(), cred)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	}
}

func TestSimulatedGateway_OrderLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)
	_, err := g.Connect(ctx, testCred)
	require.NoError(t, err)

	t.Run("market order is not resting", func(t *testing.T) {
		resp, err := g.PlaceOrder(ctx, Order{
			Symbol:   "BTCUSDT",
			Kind:     OrderKindMarket,
			Side:     OrderSideBuy,
			Quantity: decimal.RequireFromString("0.01"),
			Status:   OrderStatusFilled,
		})
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^\d{1,6}$`), resp.ExchangeOrderID)

		open, err := g.FetchOpenOrders(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 2)
	})

	t.Run("limit order rests until cancelled", func(t *testing.T) {
		resp, err := g.PlaceOrder(ctx, Order{
			Symbol:     "ETHUSDT",
			Kind:       OrderKindLimit,
			Side:       OrderSideSell,
			Quantity:   decimal.RequireFromString("2"),
			LimitPrice: DecimalPtr(decimal.RequireFromString("1900")),
			Status:     OrderStatusNew,
			CreatedAt:  time.Now(),
		})
		require.NoError(t, err)

		open, err := g.FetchOpenOrders(ctx)
		require.NoError(t, err)
		require.Len(t, open, 3)
		assert.Equal(t, resp.ExchangeOrderID, open[2].ExchangeOrderID)

		require.NoError(t, g.CancelOrder(ctx, "ETHUSDT", resp.ExchangeOrderID))

		open, err = g.FetchOpenOrders(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 2)
	})

	t.Run("cancel unknown order", func(t *testing.T) {
		err := g.CancelOrder(ctx, "BTCUSDT", "999999999")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("cancel with wrong symbol", func(t *testing.T) {
		err := g.CancelOrder(ctx, "ETHUSDT", "12345")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestSimulatedGateway_OrderIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)
	_, err := g.Connect(ctx, testCred)
	require.NoError(t, err)

	seen := map[string]bool{"12345": true, "12346": true}
	for i := 0; i < 500; i++ {
		resp, err := g.PlaceOrder(ctx, Order{
			Symbol:   "BTCUSDT",
			Kind:     OrderKindMarket,
			Side:     OrderSideBuy,
			Quantity: decimal.NewFromInt(1),
			Status:   OrderStatusFilled,
		})
		require.NoError(t, err)
		require.False(t, seen[resp.ExchangeOrderID], "duplicate id %s", resp.ExchangeOrderID)
		seen[resp.ExchangeOrderID] = true
	}
}

func TestSimulatedGateway_BalanceJitterIsBounded(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)
	account, err := g.Connect(ctx, testCred)
	require.NoError(t, err)

	prev := account.Balances
	for i := 0; i < 50; i++ {
		next, err := g.FetchBalances(ctx)
		require.NoError(t, err)
		require.Len(t, next, len(prev))

		for j := range next {
			assert.Equal(t, prev[j].Asset, next[j].Asset)
			bound := prev[j].Total.Mul(BalanceJitter)
			assert.True(t, next[j].Total.Sub(prev[j].Total).Abs().LessThanOrEqual(bound),
				"%s moved from %s to %s", next[j].Asset, prev[j].Total, next[j].Total)
			assert.True(t, next[j].Available.LessThanOrEqual(next[j].Total))
		}
		prev = next
	}
}

func TestSimulatedGateway_RequiresConnection(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)

	_, err := g.PlaceOrder(ctx, Order{Symbol: "BTCUSDT", Kind: OrderKindMarket, Side: OrderSideBuy, Quantity: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = g.FetchBalances(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = g.FetchOpenOrders(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = g.Connect(ctx, testCred)
	require.NoError(t, err)
	g.Close()

	_, err = g.FetchBalances(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSimulatedGateway_CancelledContextDuringLatency(t *testing.T) {
	g := NewSimulatedGateway(config.LatencyConfig{Connect: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Connect(ctx, testCred)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = g.FetchBalances(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState, "a cancelled connect must not open the session")
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))
	require.NoError(t, SleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

func TestOrderRequest_Validate(t *testing.T) {
	price := DecimalPtr(decimal.NewFromInt(100))
	zero := DecimalPtr(decimal.Zero)
	qty := decimal.RequireFromString("0.5")

	tests := []struct {
		name string
		req  OrderRequest
		want error
	}{
		{"valid market", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindMarket, Side: OrderSideBuy, Quantity: qty}, nil},
		{"valid limit", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindLimit, Side: OrderSideSell, Quantity: qty, LimitPrice: price}, nil},
		{"valid stop limit", OrderRequest{Symbol: "ETHUSDT", Kind: OrderKindStopLimit, Side: OrderSideSell, Quantity: qty, LimitPrice: price, StopPrice: price}, nil},
		{"zero quantity", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindMarket, Side: OrderSideBuy, Quantity: decimal.Zero}, ErrInvalidQuantity},
		{"negative quantity", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindLimit, Side: OrderSideBuy, Quantity: decimal.NewFromInt(-1), LimitPrice: price}, ErrInvalidQuantity},
		{"quantity checked before price", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindLimit, Side: OrderSideBuy, Quantity: decimal.Zero}, ErrInvalidQuantity},
		{"limit without price", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindLimit, Side: OrderSideBuy, Quantity: qty}, ErrInvalidPrice},
		{"limit with zero price", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindLimit, Side: OrderSideBuy, Quantity: qty, LimitPrice: zero}, ErrInvalidPrice},
		{"stop limit without stop", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindStopLimit, Side: OrderSideBuy, Quantity: qty, LimitPrice: price}, ErrInvalidPrice},
		{"stop limit with zero stop", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindStopLimit, Side: OrderSideBuy, Quantity: qty, LimitPrice: price, StopPrice: zero}, ErrInvalidPrice},
		{"missing symbol", OrderRequest{Kind: OrderKindMarket, Side: OrderSideBuy, Quantity: qty}, ErrInvalidState},
		{"unknown side", OrderRequest{Symbol: "BTCUSDT", Kind: OrderKindMarket, Side: "HOLD", Quantity: qty}, ErrInvalidState},
		{"unknown kind", OrderRequest{Symbol: "BTCUSDT", Kind: "ICEBERG", Side: OrderSideBuy, Quantity: qty}, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOrderRequest_Normalized(t *testing.T) {
	price := DecimalPtr(decimal.NewFromInt(100))

	req := OrderRequest{
		Symbol:     " btcusdt ",
		Kind:       "market",
		Side:       "buy",
		Quantity:   decimal.NewFromInt(1),
		LimitPrice: price,
		StopPrice:  price,
	}.Normalized()

	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, OrderKindMarket, req.Kind)
	assert.Equal(t, OrderSideBuy, req.Side)
	assert.Nil(t, req.LimitPrice)
	assert.Nil(t, req.StopPrice)

	limit := OrderRequest{Kind: OrderKindLimit, LimitPrice: price, StopPrice: price}.Normalized()
	assert.NotNil(t, limit.LimitPrice)
	assert.Nil(t, limit.StopPrice)
}

func TestOrderKind_InitialStatus(t *testing.T) {
	assert.Equal(t, OrderStatusFilled, OrderKindMarket.InitialStatus())
	assert.Equal(t, OrderStatusNew, OrderKindLimit.InitialStatus())
	assert.Equal(t, OrderStatusNew, OrderKindStopLimit.InitialStatus())
}

func TestOrder_CloneDoesNotAlias(t *testing.T) {
	o := Order{LimitPrice: DecimalPtr(decimal.NewFromInt(10)), StopPrice: DecimalPtr(decimal.NewFromInt(11))}
	c := o.Clone()

	*c.LimitPrice = decimal.NewFromInt(99)
	*c.StopPrice = decimal.NewFromInt(98)

	assert.True(t, o.LimitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.StopPrice.Equal(decimal.NewFromInt(11)))
}

func TestCredential_StringMasksSecret(t *testing.T) {
	s := Credential{APIKey: "abcdefgh", APISecret: "topsecret"}.String()
	assert.NotContains(t, s, "topsecret")
	assert.NotContains(t, s, "efgh")
	assert.Contains(t, s, "abcd")
}

func TestErrors(t *testing.T) {
	t.Run("kind matching", func(t *testing.T) {
		err := NewError(KindOrderNotFound, "cancel_order", "order not found: 1")
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.NotErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, "cancel_order: order not found: 1", err.Error())
	})

	t.Run("wrapped kind survives fmt.Errorf", func(t *testing.T) {
		err := fmt.Errorf("session: %w", NewError(KindInvalidPrice, "place_order", "bad price"))
		assert.Equal(t, KindInvalidPrice, KindOf(err))
	})

	t.Run("operation failed keeps cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := OperationFailed("fetch_balances", cause)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, ErrOperationFailed)
		assert.Equal(t, "fetch_balances: operation failed: boom", err.Error())
	})

	t.Run("foreign errors", func(t *testing.T) {
		assert.Equal(t, ErrorKind(""), KindOf(nil))
		assert.Equal(t, KindOperationFailed, KindOf(errors.New("x")))

		wrapped := AsDomainError("connect", errors.New("x"))
		assert.ErrorIs(t, wrapped, ErrOperationFailed)

		domain := NewError(KindInvalidState, "connect", "busy")
		assert.Same(t, domain, AsDomainError("connect", domain))
		assert.NoError(t, AsDomainError("connect", nil))
	})
}
