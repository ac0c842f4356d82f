package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

// PlaceOrder validates req, submits it to the gateway and records the
// accepted order. Market orders are filled at creation and followed by a
// balance refresh; Limit and StopLimit orders rest until cancelled.
func (s *Session) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	start := time.Now()
	op := notifications.OperationPlaceOrder

	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return exchange.Order{}, s.fail(ctx, op, start, err)
	}

	epoch, err := s.begin(op)
	if err != nil {
		return exchange.Order{}, s.fail(ctx, op, start, err)
	}

	order := exchange.Order{
		ID:         s.newID(),
		Symbol:     req.Symbol,
		Kind:       req.Kind,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Status:     req.Kind.InitialStatus(),
		CreatedAt:  s.now(),
	}

	resp, gwErr := s.gateway.PlaceOrder(ctx, order.Clone())

	s.mu.Lock()
	if err := s.resumeLocked(op, epoch); err != nil {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start, err)
	}
	if gwErr != nil {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start, exchange.AsDomainError(string(op), gwErr))
	}
	order.ExchangeOrderID = resp.ExchangeOrderID
	s.orders = append(s.orders, order.Clone())
	metrics.SetOpenOrders(countOpen(s.orders))
	s.mu.Unlock()

	metrics.RecordOrderPlaced(string(order.Kind), string(order.Side), string(order.Status))

	s.log.Info().
		Str("order_id", order.ID).
		Str("exchange_order_id", order.ExchangeOrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("kind", string(order.Kind)).
		Str("quantity", order.Quantity.String()).
		Str("status", string(order.Status)).
		Msg("Order placed")

	message := fmt.Sprintf("%s %s %s %s placed", order.Kind, order.Side, order.Quantity, order.Symbol)
	if order.Status == exchange.OrderStatusFilled {
		message = fmt.Sprintf("%s %s %s %s filled", order.Kind, order.Side, order.Quantity, order.Symbol)
	}
	s.succeed(ctx, op, start, notifications.Success(op, message).
		WithData("order_id", order.ID).
		WithData("status", string(order.Status)))

	if order.Kind == exchange.OrderKindMarket {
		// the fill is reflected in balances; the order outcome is already reported
		if err := s.refreshBalances(ctx); err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID).Msg("Balance refresh after fill failed")
		}
	}

	return order.Clone(), nil
}

// CancelOrder cancels the NEW order id on symbol. It fails with
// OrderNotFound when the session holds no such order, and with InvalidState
// when the order is already filled. The order leaves the session once the
// gateway confirms.
func (s *Session) CancelOrder(ctx context.Context, symbol, orderID string) (exchange.Order, error) {
	start := time.Now()
	op := notifications.OperationCancelOrder
	symbol = normalizeSymbol(symbol)

	s.mu.Lock()
	idx := s.findLocked(symbol, orderID)
	if idx < 0 {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start,
			exchange.NewError(exchange.KindOrderNotFound, string(op), fmt.Sprintf("order not found: %s", orderID)))
	}
	target := s.orders[idx].Clone()
	if target.Status != exchange.OrderStatusNew {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start,
			exchange.NewError(exchange.KindInvalidState, string(op), fmt.Sprintf("order %s is %s and cannot be cancelled", orderID, target.Status)))
	}
	s.pending++
	epoch := s.epoch
	s.mu.Unlock()

	gwErr := s.gateway.CancelOrder(ctx, target.Symbol, target.ExchangeOrderID)

	s.mu.Lock()
	if err := s.resumeLocked(op, epoch); err != nil {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start, err)
	}
	if gwErr != nil {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start, exchange.AsDomainError(string(op), gwErr))
	}
	// a concurrent cancel of the same order may have removed it already
	idx = s.findLocked(symbol, orderID)
	if idx < 0 {
		s.mu.Unlock()
		return exchange.Order{}, s.fail(ctx, op, start,
			exchange.NewError(exchange.KindOrderNotFound, string(op), fmt.Sprintf("order not found: %s", orderID)))
	}
	s.orders = slices.Delete(s.orders, idx, idx+1)
	metrics.SetOpenOrders(countOpen(s.orders))
	s.mu.Unlock()

	metrics.RecordOrderCancelled()
	target.Status = exchange.OrderStatusCancelled

	s.log.Info().
		Str("order_id", target.ID).
		Str("exchange_order_id", target.ExchangeOrderID).
		Str("symbol", target.Symbol).
		Msg("Order cancelled")

	s.succeed(ctx, op, start, notifications.Success(op, fmt.Sprintf("Order %s cancelled", target.ExchangeOrderID)).
		WithData("order_id", target.ID))

	return target, nil
}

// RefreshOrders reconciles the session's resting orders with the gateway.
// Filled orders are kept; resting orders the gateway no longer reports are
// dropped and new ones are adopted.
func (s *Session) RefreshOrders(ctx context.Context) error {
	start := time.Now()
	op := notifications.OperationRefreshOrders

	epoch, err := s.begin(op)
	if err != nil {
		return s.fail(ctx, op, start, err)
	}

	fresh, gwErr := s.gateway.FetchOpenOrders(ctx)

	s.mu.Lock()
	if err := s.resumeLocked(op, epoch); err != nil {
		s.mu.Unlock()
		return s.fail(ctx, op, start, err)
	}
	if gwErr != nil {
		s.mu.Unlock()
		return s.fail(ctx, op, start, exchange.AsDomainError(string(op), gwErr))
	}

	resting := make(map[string]exchange.Order, len(fresh))
	for _, o := range fresh {
		resting[o.ExchangeOrderID] = o
	}

	kept := make([]exchange.Order, 0, len(s.orders)+len(fresh))
	known := make(map[string]bool, len(s.orders))
	for _, o := range s.orders {
		if o.Status != exchange.OrderStatusNew {
			kept = append(kept, o)
			continue
		}
		if _, ok := resting[o.ExchangeOrderID]; ok {
			kept = append(kept, o)
			known[o.ExchangeOrderID] = true
		}
	}
	adopted := 0
	for _, o := range fresh {
		if known[o.ExchangeOrderID] {
			continue
		}
		o = o.Clone()
		o.ID = s.newID()
		kept = append(kept, o)
		adopted++
	}
	dropped := countOpen(s.orders) - len(known)
	s.orders = kept
	open := countOpen(s.orders)
	metrics.SetOpenOrders(open)
	s.mu.Unlock()

	s.log.Info().
		Int("open_orders", open).
		Int("adopted", adopted).
		Int("dropped", dropped).
		Msg("Open orders refreshed")

	s.succeed(ctx, op, start, notifications.Success(op, fmt.Sprintf("%d open orders", open)))
	return nil
}

// findLocked returns the index of the order with id on symbol, or -1.
// Callers hold s.mu.
func (s *Session) findLocked(symbol, id string) int {
	return slices.IndexFunc(s.orders, func(o exchange.Order) bool {
		return o.ID == id && o.Symbol == symbol
	})
}
