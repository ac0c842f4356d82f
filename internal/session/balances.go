package session

import (
	"context"
	"strings"
	"time"

	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

// RefreshBalances fetches balances from the gateway and merges them into the
// assets the session already knows. Assets are never added.
func (s *Session) RefreshBalances(ctx context.Context) error {
	start := time.Now()
	op := notifications.OperationRefreshBalances

	if err := s.refreshBalances(ctx); err != nil {
		return s.fail(ctx, op, start, err)
	}

	s.succeed(ctx, op, start, notifications.Success(op, "Balances refreshed"))
	return nil
}

func (s *Session) refreshBalances(ctx context.Context) error {
	op := notifications.OperationRefreshBalances

	epoch, err := s.begin(op)
	if err != nil {
		return err
	}

	fresh, gwErr := s.gateway.FetchBalances(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resumeLocked(op, epoch); err != nil {
		return err
	}
	if gwErr != nil {
		return exchange.AsDomainError(string(op), gwErr)
	}

	byAsset := make(map[string]exchange.Balance, len(fresh))
	for _, b := range fresh {
		byAsset[b.Asset] = b
	}
	updated := 0
	for i, b := range s.balances {
		if f, ok := byAsset[b.Asset]; ok {
			s.balances[i].Total = f.Total
			s.balances[i].Available = f.Available
			updated++
		}
	}

	s.log.Debug().
		Int("assets", len(s.balances)).
		Int("updated", updated).
		Msg("Balances refreshed")

	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
