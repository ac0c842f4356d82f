package exchange

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderKind represents the execution style of an order
type OrderKind string

const (
	OrderKindMarket    OrderKind = "MARKET"
	OrderKindLimit     OrderKind = "LIMIT"
	OrderKindStopLimit OrderKind = "STOP_LIMIT"
)

// OrderStatus represents the current state of an order
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// InitialStatus is the status an accepted order starts in. Market orders are
// filled synthetically at creation; everything else rests until cancelled.
func (k OrderKind) InitialStatus() OrderStatus {
	if k == OrderKindMarket {
		return OrderStatusFilled
	}
	return OrderStatusNew
}

// Valid reports whether k is a known order kind
func (k OrderKind) Valid() bool {
	switch k {
	case OrderKindMarket, OrderKindLimit, OrderKindStopLimit:
		return true
	}
	return false
}

// Valid reports whether s is a known side
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Credential is an API key pair. It is held in memory only.
type Credential struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Valid reports whether both halves of the credential are present
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

// String never prints the secret
func (c Credential) String() string {
	key := c.APIKey
	if len(key) > 4 {
		key = key[:4] + "****"
	}
	return "Credential{APIKey: " + key + ", APISecret: ****}"
}

// Balance is the holding of one asset
type Balance struct {
	Asset     string          `json:"asset"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
}

// Order represents a trading order
type Order struct {
	ID              string           `json:"id"`
	ExchangeOrderID string           `json:"exchange_order_id,omitempty"` // Identifier assigned by the venue
	Symbol          string           `json:"symbol"`
	Kind            OrderKind        `json:"kind"`
	Side            OrderSide        `json:"side"`
	Quantity        decimal.Decimal  `json:"quantity"`
	LimitPrice      *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice       *decimal.Decimal `json:"stop_price,omitempty"`
	Status          OrderStatus      `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Clone returns a deep copy so snapshots never alias session state
func (o Order) Clone() Order {
	if o.LimitPrice != nil {
		p := *o.LimitPrice
		o.LimitPrice = &p
	}
	if o.StopPrice != nil {
		p := *o.StopPrice
		o.StopPrice = &p
	}
	return o
}

// OrderRequest represents a request to place an order
type OrderRequest struct {
	Symbol     string           `json:"symbol"`
	Kind       OrderKind        `json:"kind"`
	Side       OrderSide        `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
}

// Validate checks the order invariants: positive quantity, a positive limit
// price for LIMIT and STOP_LIMIT, and a positive stop price for STOP_LIMIT.
// Quantity is checked first so a non-positive quantity is always reported as
// such, whatever else is wrong with the request.
func (r OrderRequest) Validate() error {
	const op = "place_order"

	if !r.Quantity.IsPositive() {
		return NewError(KindInvalidQuantity, op, "quantity must be positive")
	}

	if r.Kind == OrderKindLimit || r.Kind == OrderKindStopLimit {
		if r.LimitPrice == nil || !r.LimitPrice.IsPositive() {
			return NewError(KindInvalidPrice, op, string(r.Kind)+" orders must have a positive limit price")
		}
	}

	if r.Kind == OrderKindStopLimit {
		if r.StopPrice == nil || !r.StopPrice.IsPositive() {
			return NewError(KindInvalidPrice, op, "STOP_LIMIT orders must have a positive stop price")
		}
	}

	if strings.TrimSpace(r.Symbol) == "" {
		return NewError(KindInvalidState, op, "symbol is required")
	}
	if !r.Side.Valid() {
		return NewError(KindInvalidState, op, "invalid order side: "+string(r.Side))
	}
	if !r.Kind.Valid() {
		return NewError(KindInvalidState, op, "invalid order kind: "+string(r.Kind))
	}

	return nil
}

// Normalized returns the request with the symbol trimmed and upper-cased and
// prices the order kind does not use dropped.
func (r OrderRequest) Normalized() OrderRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Side = OrderSide(strings.ToUpper(string(r.Side)))
	r.Kind = OrderKind(strings.ToUpper(string(r.Kind)))
	if r.Kind == OrderKindMarket {
		r.LimitPrice = nil
	}
	if r.Kind != OrderKindStopLimit {
		r.StopPrice = nil
	}
	return r
}

// Account is what a gateway hands back on connect
type Account struct {
	Balances []Balance `json:"balances"`
	Orders   []Order   `json:"orders"`
}

// PlaceOrderResponse represents the venue acknowledgement of an order
type PlaceOrderResponse struct {
	ExchangeOrderID string `json:"exchange_order_id"`
	Message         string `json:"message,omitempty"`
}

// DecimalPtr is a convenience for optional prices
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
