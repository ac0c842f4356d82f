package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func limitRequest(symbol string, qty, price string) exchange.OrderRequest {
	return exchange.OrderRequest{
		Symbol:     symbol,
		Kind:       exchange.OrderKindLimit,
		Side:       exchange.OrderSideBuy,
		Quantity:   dec(qty),
		LimitPrice: exchange.DecimalPtr(dec(price)),
	}
}

func TestPlaceOrder_MarketFillsAndRefreshesBalances(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	order, err := f.session.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol:   "BTCUSDT",
		Kind:     exchange.OrderKindMarket,
		Side:     exchange.OrderSideBuy,
		Quantity: dec("0.1"),
	})
	require.NoError(t, err)

	assert.Equal(t, exchange.OrderStatusFilled, order.Status)
	assert.NotEmpty(t, order.ID)
	assert.Regexp(t, `^[0-9]{1,6}$`, order.ExchangeOrderID)
	assert.Equal(t, int32(1), f.gateway.balances.Load(), "market fill refreshes balances")

	assert.Len(t, f.session.Orders(), 3)
	assert.Len(t, f.session.OpenOrders(), 2, "a filled order is not open")

	notes := f.inbox.Drain()
	require.Len(t, notes, 1, "one notification per operation outcome")
	assert.Equal(t, notifications.OperationPlaceOrder, notes[0].Operation)
	assert.Equal(t, "FILLED", notes[0].Data["status"])
}

func TestPlaceOrder_RestingKinds(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	limit, err := f.session.PlaceOrder(context.Background(), limitRequest("btcusdt", "0.2", "26000"))
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusNew, limit.Status)
	assert.Equal(t, "BTCUSDT", limit.Symbol)
	assert.Nil(t, limit.StopPrice)

	stop, err := f.session.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol:     "ETHUSDT",
		Kind:       exchange.OrderKindStopLimit,
		Side:       exchange.OrderSideSell,
		Quantity:   dec("1"),
		LimitPrice: exchange.DecimalPtr(dec("1700")),
		StopPrice:  exchange.DecimalPtr(dec("1710")),
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusNew, stop.Status)

	assert.Equal(t, int32(0), f.gateway.balances.Load(), "resting orders do not refresh balances")
	assert.Len(t, f.session.OpenOrders(), 4)
	assert.NotEqual(t, limit.ID, stop.ID)
	assert.NotEqual(t, limit.ExchangeOrderID, stop.ExchangeOrderID)
}

func TestPlaceOrder_RepeatedMarketOrdersAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	req := exchange.OrderRequest{Symbol: "BTCUSDT", Kind: exchange.OrderKindMarket, Side: exchange.OrderSideBuy, Quantity: dec("0.1")}
	a, err := f.session.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	b, err := f.session.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, f.session.Orders(), 4)
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  exchange.OrderRequest
		want error
	}{
		{
			name: "zero quantity market",
			req:  exchange.OrderRequest{Symbol: "BTCUSDT", Kind: exchange.OrderKindMarket, Side: exchange.OrderSideBuy},
			want: exchange.ErrInvalidQuantity,
		},
		{
			name: "negative quantity with bad price",
			req: exchange.OrderRequest{Symbol: "BTCUSDT", Kind: exchange.OrderKindLimit, Side: exchange.OrderSideBuy,
				Quantity: dec("-1"), LimitPrice: exchange.DecimalPtr(decimal.Zero)},
			want: exchange.ErrInvalidQuantity,
		},
		{
			name: "limit price zero",
			req:  limitRequest("BTCUSDT", "1", "0"),
			want: exchange.ErrInvalidPrice,
		},
		{
			name: "limit price absent",
			req:  exchange.OrderRequest{Symbol: "BTCUSDT", Kind: exchange.OrderKindLimit, Side: exchange.OrderSideBuy, Quantity: dec("1")},
			want: exchange.ErrInvalidPrice,
		},
		{
			name: "stop price absent",
			req: exchange.OrderRequest{Symbol: "ETHUSDT", Kind: exchange.OrderKindStopLimit, Side: exchange.OrderSideSell,
				Quantity: dec("1"), LimitPrice: exchange.DecimalPtr(dec("1800"))},
			want: exchange.ErrInvalidPrice,
		},
		{
			name: "missing symbol",
			req:  limitRequest("", "1", "100"),
			want: exchange.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.connect(t)
			before := f.session.Orders()

			_, err := f.session.PlaceOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, f.session.Orders(), "open-order set unchanged")
			assert.Equal(t, int32(0), f.gateway.places.Load())

			notes := f.inbox.Drain()
			require.Len(t, notes, 1)
			assert.Equal(t, notifications.LevelError, notes[0].Level)
		})
	}
}

func TestPlaceOrder_RequiresConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.PlaceOrder(context.Background(), limitRequest("BTCUSDT", "1", "100"))
	assert.ErrorIs(t, err, exchange.ErrInvalidState)

	// validation still wins over the connection check
	_, err = f.session.PlaceOrder(context.Background(), limitRequest("BTCUSDT", "0", "100"))
	assert.ErrorIs(t, err, exchange.ErrInvalidQuantity)
}

func TestPlaceOrder_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.gateway.failCalls("place", errors.New("503 service unavailable"))

	_, err := f.session.PlaceOrder(context.Background(), limitRequest("BTCUSDT", "1", "100"))
	assert.ErrorIs(t, err, exchange.ErrOperationFailed)
	assert.Len(t, f.session.Orders(), 2)
	assert.Equal(t, 0, f.session.Snapshot().Pending)
}

func TestPlaceOrder_DiscardedAfterDisconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	release := f.gateway.holdCalls("place")

	result := make(chan error, 1)
	go func() {
		_, err := f.session.PlaceOrder(context.Background(), limitRequest("BTCUSDT", "1", "100"))
		result <- err
	}()
	f.gateway.waitEntered(t, "place")
	assert.Equal(t, 1, f.session.Snapshot().Pending)

	require.NoError(t, f.session.Disconnect(context.Background()))
	release()

	assert.ErrorIs(t, <-result, exchange.ErrInvalidState)
	assert.Empty(t, f.session.Orders())
	assert.Equal(t, 0, f.session.Snapshot().Pending)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	order, err := f.session.PlaceOrder(context.Background(), limitRequest("BTCUSDT", "1", "100"))
	require.NoError(t, err)
	f.inbox.Drain()

	cancelled, err := f.session.CancelOrder(context.Background(), "btcusdt", order.ID)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, order.ID, cancelled.ID)
	assert.Len(t, f.session.Orders(), 2)
	assert.Equal(t, []notifications.Operation{notifications.OperationCancelOrder}, f.operations())

	_, err = f.session.CancelOrder(context.Background(), "BTCUSDT", order.ID)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound, "second cancel")
}

func TestCancelOrder_Errors(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	resting := f.session.OpenOrders()[0]
	_, err := f.session.CancelOrder(context.Background(), "BTCUSDT", resting.ID)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound, "wrong symbol")

	_, err = f.session.CancelOrder(context.Background(), resting.Symbol, "missing")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	filled, err := f.session.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Kind: exchange.OrderKindMarket, Side: exchange.OrderSideSell, Quantity: dec("0.01"),
	})
	require.NoError(t, err)
	_, err = f.session.CancelOrder(context.Background(), "BTCUSDT", filled.ID)
	assert.ErrorIs(t, err, exchange.ErrInvalidState)

	assert.Equal(t, int32(0), f.gateway.cancels.Load())
	assert.Len(t, f.session.Orders(), 3)
}

func TestCancelOrder_ConcurrentCancelsRemoveOnce(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	target := f.session.OpenOrders()[0]

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.session.CancelOrder(context.Background(), target.Symbol, target.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.session.Orders(), 1)
	assert.Len(t, f.inbox.Drain(), len(errs), "every outcome is reported")
}

func TestRefreshOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.session.RefreshOrders(ctx), exchange.ErrInvalidState)

	f.connect(t)

	_, err := f.session.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Kind: exchange.OrderKindMarket, Side: exchange.OrderSideBuy, Quantity: dec("0.1"),
	})
	require.NoError(t, err)

	// another client rests an order and cancels one of the baseline orders
	_, err = f.gateway.SimulatedGateway.PlaceOrder(ctx, exchange.Order{
		Symbol: "BNBUSDT", Kind: exchange.OrderKindLimit, Side: exchange.OrderSideBuy,
		Quantity: dec("2"), LimitPrice: exchange.DecimalPtr(dec("200")), Status: exchange.OrderStatusNew,
	})
	require.NoError(t, err)
	require.NoError(t, f.gateway.SimulatedGateway.CancelOrder(ctx, "BTCUSDT", "12345"))
	f.inbox.Drain()

	require.NoError(t, f.session.RefreshOrders(ctx))

	var symbols []string
	for _, o := range f.session.OpenOrders() {
		symbols = append(symbols, o.Symbol)
		assert.NotEmpty(t, o.ID)
	}
	assert.ElementsMatch(t, []string{"ETHUSDT", "BNBUSDT"}, symbols)
	assert.Len(t, f.session.Orders(), 3, "filled order kept")
	assert.Equal(t, []notifications.Operation{notifications.OperationRefreshOrders}, f.operations())
}

func TestPlaceOrder_StatusByKindProperty(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom([]exchange.OrderKind{
			exchange.OrderKindMarket, exchange.OrderKindLimit, exchange.OrderKindStopLimit,
		}).Draw(t, "kind")
		side := rapid.SampledFrom([]exchange.OrderSide{exchange.OrderSideBuy, exchange.OrderSideSell}).Draw(t, "side")
		qty := decimal.New(rapid.Int64Range(1, 1_000_000).Draw(t, "qty"), -4)
		price := decimal.New(rapid.Int64Range(1, 10_000_000).Draw(t, "price"), -2)

		order, err := f.session.PlaceOrder(context.Background(), exchange.OrderRequest{
			Symbol:     rapid.SampledFrom([]string{"BTCUSDT", "ETHUSDT", "DOGEUSDT"}).Draw(t, "symbol"),
			Kind:       kind,
			Side:       side,
			Quantity:   qty,
			LimitPrice: exchange.DecimalPtr(price),
			StopPrice:  exchange.DecimalPtr(price.Add(decimal.NewFromInt(1))),
		})
		if err != nil {
			t.Fatalf("valid order rejected: %v", err)
		}

		filled := order.Status == exchange.OrderStatusFilled
		if filled != (kind == exchange.OrderKindMarket) {
			t.Fatalf("%s order has status %s", kind, order.Status)
		}
		if !filled && order.Status != exchange.OrderStatusNew {
			t.Fatalf("%s order has status %s", kind, order.Status)
		}
	})
}

func TestPlaceOrder_NonPositiveQuantityProperty(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	before := len(f.session.Orders())

	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom([]exchange.OrderKind{
			exchange.OrderKindMarket, exchange.OrderKindLimit, exchange.OrderKindStopLimit,
		}).Draw(t, "kind")
		qty := decimal.New(rapid.Int64Range(-1_000_000, 0).Draw(t, "qty"), -4)

		req := exchange.OrderRequest{Symbol: "BTCUSDT", Kind: kind, Side: exchange.OrderSideBuy, Quantity: qty}
		if rapid.Bool().Draw(t, "withPrices") {
			p := decimal.New(rapid.Int64Range(-100, 100).Draw(t, "price"), 0)
			req.LimitPrice = &p
			req.StopPrice = &p
		}

		_, err := f.session.PlaceOrder(context.Background(), req)
		if !errors.Is(err, exchange.ErrInvalidQuantity) {
			t.Fatalf("quantity %s on %s: got %v", qty, kind, err)
		}
	})

	assert.Len(t, f.session.Orders(), before)
}
