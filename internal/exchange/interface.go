package exchange

import (
	"context"
)

// Gateway is the capability a session needs from a venue.
// SimulatedGateway (paper venue) and FuturesGateway (Binance Futures) implement it.
type Gateway interface {
	// Name identifies the venue in logs and notifications
	Name() string

	// Connect authenticates and returns the account baseline
	Connect(ctx context.Context, cred Credential) (*Account, error)

	// PlaceOrder submits an order the session has already validated
	PlaceOrder(ctx context.Context, order Order) (*PlaceOrderResponse, error)

	// CancelOrder cancels a resting order by its venue identifier
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error

	// FetchBalances returns the current balance per asset
	FetchBalances(ctx context.Context) ([]Balance, error)

	// FetchOpenOrders returns the resting orders known to the venue
	FetchOpenOrders(ctx context.Context) ([]Order, error)
}
