package exchange

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
)

// FuturesGateway trades on Binance USDⓈ-M Futures. Every request goes
// through a rate limiter, exponential backoff retry and a circuit breaker.
type FuturesGateway struct {
	mu     sync.RWMutex
	client *futures.Client

	cfg     config.ExchangeConfig
	baseURL string

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	alerts  *AlertManager
}

// FuturesOption customizes a FuturesGateway
type FuturesOption func(*FuturesGateway)

// WithBaseURL points the client at another endpoint
func WithBaseURL(url string) FuturesOption {
	return func(g *FuturesGateway) { g.baseURL = url }
}

// WithAlertManager replaces the alert sink
func WithAlertManager(am *AlertManager) FuturesOption {
	return func(g *FuturesGateway) { g.alerts = am }
}

// NewFuturesGateway creates a Binance Futures gateway. No request is made
// until Connect.
func NewFuturesGateway(cfg config.ExchangeConfig, opts ...FuturesOption) *FuturesGateway {
	g := &FuturesGateway{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
		alerts:  NewAlertManager(),
	}
	for _, opt := range opts {
		opt(g)
	}

	breakerCfg := cfg.Breaker
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance_futures",
		MaxRequests: breakerCfg.HalfOpenMaxReqs,
		Interval:    breakerCfg.CountInterval,
		Timeout:     breakerCfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerCfg.MinRequests && failureRatio >= breakerCfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.UpdateCircuitBreaker(name, to.String())
			g.alerts.SendAlert(context.Background(), AlertCircuitStateChanged(name, from.String(), to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isRequestError(err)
		},
	})

	if cfg.Testnet {
		log.Info().Msg("Binance Futures gateway initialized (TESTNET mode)")
	} else {
		log.Warn().Msg("Binance Futures gateway initialized (LIVE TRADING mode)")
	}

	return g
}

// Name implements Gateway
func (g *FuturesGateway) Name() string {
	if g.cfg.Testnet {
		return "binance_futures_testnet"
	}
	return "binance_futures"
}

// BreakerState reports the circuit breaker state
func (g *FuturesGateway) BreakerState() gobreaker.State {
	return g.breaker.State()
}

// Connect implements Gateway. The credential is verified by loading the
// account; its balances and open orders become the session baseline.
func (g *FuturesGateway) Connect(ctx context.Context, cred Credential) (*Account, error) {
	if !cred.Valid() {
		return nil, NewError(KindInvalidCredential, "connect", "API key and secret are required")
	}

	futures.UseTestnet = g.cfg.Testnet
	client := futures.NewClient(cred.APIKey, cred.APISecret)
	if g.baseURL != "" {
		client.BaseURL = g.baseURL
	}

	g.mu.Lock()
	g.client = client
	g.mu.Unlock()

	fail := func(err error) (*Account, error) {
		g.mu.Lock()
		g.client = nil
		g.mu.Unlock()

		g.alerts.SendAlert(ctx, AlertConnectionFailed(err, g.Name()))
		return nil, remapOp(err, "connect")
	}

	balances, err := g.FetchBalances(ctx)
	if err != nil {
		return fail(err)
	}

	orders, err := g.FetchOpenOrders(ctx)
	if err != nil {
		return fail(err)
	}

	log.Info().
		Str("exchange", g.Name()).
		Str("api_key", config.MaskSecret(cred.APIKey)).
		Int("balances", len(balances)).
		Int("open_orders", len(orders)).
		Msg("Connected to Binance Futures")

	return &Account{Balances: balances, Orders: orders}, nil
}

// PlaceOrder implements Gateway
func (g *FuturesGateway) PlaceOrder(ctx context.Context, order Order) (*PlaceOrderResponse, error) {
	const op = "place_order"

	client, err := g.connectedClient(op)
	if err != nil {
		return nil, err
	}

	side := futures.SideTypeBuy
	if order.Side == OrderSideSell {
		side = futures.SideTypeSell
	}

	var resp *futures.CreateOrderResponse
	err = g.call(ctx, "create_order", func() error {
		svc := client.NewCreateOrderService().
			Symbol(order.Symbol).
			Side(side).
			Quantity(order.Quantity.String())

		switch order.Kind {
		case OrderKindMarket:
			svc = svc.Type(futures.OrderTypeMarket)
		case OrderKindLimit:
			svc = svc.Type(futures.OrderTypeLimit).
				TimeInForce(futures.TimeInForceTypeGTC).
				Price(order.LimitPrice.String())
		case OrderKindStopLimit:
			svc = svc.Type(futures.OrderTypeStop).
				TimeInForce(futures.TimeInForceTypeGTC).
				Price(order.LimitPrice.String()).
				StopPrice(order.StopPrice.String())
		}

		var callErr error
		resp, callErr = svc.Do(ctx)
		return callErr
	})
	if err != nil {
		g.alerts.SendAlert(ctx, AlertOrderPlacementFailed(err, order.Symbol, order.Side, order.Quantity, order.Kind))
		return nil, mapFuturesError(op, err)
	}

	exchangeOrderID := strconv.FormatInt(resp.OrderID, 10)
	log.Info().
		Str("exchange_order_id", exchangeOrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("kind", string(order.Kind)).
		Str("status", string(resp.Status)).
		Msg("Order placed on Binance Futures")

	return &PlaceOrderResponse{
		ExchangeOrderID: exchangeOrderID,
		Message:         "Order placed successfully",
	}, nil
}

// CancelOrder implements Gateway
func (g *FuturesGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	const op = "cancel_order"

	client, err := g.connectedClient(op)
	if err != nil {
		return err
	}

	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return NewError(KindOrderNotFound, op, "invalid exchange order id: "+exchangeOrderID)
	}

	err = g.call(ctx, "cancel_order", func() error {
		_, callErr := client.NewCancelOrderService().
			Symbol(symbol).
			OrderID(orderID).
			Do(ctx)
		return callErr
	})
	if err != nil {
		g.alerts.SendAlert(ctx, AlertOrderCancellationFailed(err, symbol, exchangeOrderID))
		return mapFuturesError(op, err)
	}

	log.Info().
		Str("exchange_order_id", exchangeOrderID).
		Str("symbol", symbol).
		Msg("Order cancelled on Binance Futures")

	return nil
}

// FetchBalances implements Gateway. Assets with a zero wallet balance are
// left out.
func (g *FuturesGateway) FetchBalances(ctx context.Context) ([]Balance, error) {
	const op = "fetch_balances"

	client, err := g.connectedClient(op)
	if err != nil {
		return nil, err
	}

	var raw []*futures.Balance
	err = g.call(ctx, "balance", func() error {
		var callErr error
		raw, callErr = client.NewGetBalanceService().Do(ctx)
		return callErr
	})
	if err != nil {
		g.alerts.SendAlert(ctx, AlertAccountQueryFailed(err, "balances"))
		return nil, mapFuturesError(op, err)
	}

	balances := make([]Balance, 0, len(raw))
	for _, b := range raw {
		total, err := decimal.NewFromString(b.Balance)
		if err != nil || total.IsZero() {
			continue
		}
		available, err := decimal.NewFromString(b.AvailableBalance)
		if err != nil {
			available = total
		}
		balances = append(balances, Balance{Asset: b.Asset, Total: total, Available: available})
	}

	return balances, nil
}

// FetchOpenOrders implements Gateway
func (g *FuturesGateway) FetchOpenOrders(ctx context.Context) ([]Order, error) {
	const op = "fetch_open_orders"

	client, err := g.connectedClient(op)
	if err != nil {
		return nil, err
	}

	var raw []*futures.Order
	err = g.call(ctx, "open_orders", func() error {
		var callErr error
		raw, callErr = client.NewListOpenOrdersService().Do(ctx)
		return callErr
	})
	if err != nil {
		g.alerts.SendAlert(ctx, AlertAccountQueryFailed(err, "open_orders"))
		return nil, mapFuturesError(op, err)
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		order, ok := fromFuturesOrder(o)
		if !ok {
			log.Debug().
				Str("symbol", o.Symbol).
				Str("type", string(o.Type)).
				Msg("Skipping open order of unsupported type")
			continue
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// Close forgets the client; the next call needs a new Connect
func (g *FuturesGateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
}

func (g *FuturesGateway) connectedClient(op string) (*futures.Client, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.client == nil {
		return nil, NewError(KindInvalidState, op, "not connected")
	}
	return g.client, nil
}

// call runs fn under the breaker, retrying transient failures and waiting
// on the rate limiter before every attempt.
func (g *FuturesGateway) call(ctx context.Context, endpoint string, fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, WithRetry(ctx, g.cfg.Retry, func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
			start := time.Now()
			err := fn()
			metrics.RecordExchangeAPICall(g.Name(), endpoint, float64(time.Since(start).Milliseconds()), err)
			return err
		})
	})
	return err
}

func fromFuturesOrder(o *futures.Order) (Order, bool) {
	var kind OrderKind
	switch o.Type {
	case futures.OrderTypeMarket:
		kind = OrderKindMarket
	case futures.OrderTypeLimit:
		kind = OrderKindLimit
	case futures.OrderTypeStop:
		kind = OrderKindStopLimit
	default:
		return Order{}, false
	}

	quantity, err := decimal.NewFromString(o.OrigQuantity)
	if err != nil {
		return Order{}, false
	}

	order := Order{
		ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
		Symbol:          o.Symbol,
		Kind:            kind,
		Side:            OrderSide(o.Side),
		Quantity:        quantity,
		Status:          fromFuturesStatus(o.Status),
		CreatedAt:       time.UnixMilli(o.Time),
	}
	if kind != OrderKindMarket {
		if price, err := decimal.NewFromString(o.Price); err == nil {
			order.LimitPrice = DecimalPtr(price)
		}
	}
	if kind == OrderKindStopLimit {
		if stop, err := decimal.NewFromString(o.StopPrice); err == nil {
			order.StopPrice = DecimalPtr(stop)
		}
	}

	return order, true
}

func fromFuturesStatus(s futures.OrderStatusType) OrderStatus {
	switch s {
	case futures.OrderStatusTypeFilled:
		return OrderStatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired, futures.OrderStatusTypeRejected:
		return OrderStatusCancelled
	default:
		return OrderStatusNew
	}
}

// isRequestError reports whether Binance rejected the request itself
// (codes -1100 and below) rather than failing to serve it.
func isRequestError(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code <= -1100
}

func mapFuturesError(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -2011, -2013: // Unknown order sent / Order does not exist
			return &Error{Kind: KindOrderNotFound, Op: op, Message: apiErr.Message, Err: err}
		case -2014, -2015, -1022: // bad API key format / invalid key, IP or permissions / bad signature
			return &Error{Kind: KindInvalidCredential, Op: op, Message: apiErr.Message, Err: err}
		case -4003, -4005, -4023, -4164, -1111: // quantity bounds, step size, min notional, precision
			return &Error{Kind: KindInvalidQuantity, Op: op, Message: apiErr.Message, Err: err}
		case -4001, -4002, -4014, -4016, -4024: // price bounds, tick size, percent price
			return &Error{Kind: KindInvalidPrice, Op: op, Message: apiErr.Message, Err: err}
		}
		if isRequestError(err) {
			return &Error{Kind: KindInvalidState, Op: op, Message: apiErr.Message, Err: err}
		}
	}
	return OperationFailed(op, err)
}

// remapOp relabels a domain error with the operation the caller performed
func remapOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) {
		relabeled := *e
		relabeled.Op = op
		return &relabeled
	}
	return OperationFailed(op, err)
}
