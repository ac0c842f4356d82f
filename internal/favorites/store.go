// Package favorites keeps the user's persisted set of favorite symbols
package favorites

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/market"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

// Store is the in-memory favorite set, written through to its backend on
// every mutation. Symbols keep insertion order.
type Store struct {
	mu       sync.RWMutex
	symbols  []string
	backend  Backend
	notifier notifications.Notifier
	log      zerolog.Logger
}

// Defaults is the set used when nothing (or an empty list) was persisted
func Defaults() []string {
	return market.DefaultSymbolNames()
}

// Open loads the persisted set. A missing or empty set falls back to Defaults.
func Open(ctx context.Context, backend Backend, notifier notifications.Notifier) (*Store, error) {
	if notifier == nil {
		notifier = notifications.Discard{}
	}

	s := &Store{
		backend:  backend,
		notifier: notifier,
		log:      config.NewLogger("favorites"),
	}

	stored, found, err := backend.Load(ctx)
	if err != nil {
		return nil, exchange.OperationFailed("load_favorites", err)
	}

	for _, sym := range stored {
		sym = normalize(sym)
		if sym != "" && !slices.Contains(s.symbols, sym) {
			s.symbols = append(s.symbols, sym)
		}
	}
	if len(s.symbols) == 0 {
		s.symbols = Defaults()
	}
	metrics.SetFavoritesCount(len(s.symbols))

	s.log.Info().
		Str("backend", backend.Name()).
		Bool("found", found).
		Strs("symbols", s.symbols).
		Msg("Favorites loaded")

	return s, nil
}

// List returns a copy of the set
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.symbols)
}

// Contains reports whether symbol is a favorite
func (s *Store) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.symbols, normalize(symbol))
}

// Add inserts symbol and persists the set. Adding an existing symbol is a
// no-op that neither persists nor notifies; added reports which happened.
func (s *Store) Add(ctx context.Context, symbol string) (added bool, err error) {
	sym := normalize(symbol)
	if sym == "" {
		err := exchange.NewError(exchange.KindInvalidState, "add_favorite", "symbol is required")
		s.notify(ctx, notifications.Failure(notifications.OperationAddFavorite, err))
		return false, err
	}

	s.mu.Lock()
	if slices.Contains(s.symbols, sym) {
		s.mu.Unlock()
		return false, nil
	}
	next := append(slices.Clone(s.symbols), sym)
	err = s.commitLocked(ctx, next)
	s.mu.Unlock()

	if err != nil {
		err = exchange.OperationFailed("add_favorite", err)
		s.notify(ctx, notifications.Failure(notifications.OperationAddFavorite, err))
		return false, err
	}

	s.notify(ctx, notifications.Success(notifications.OperationAddFavorite, sym+" added to favorites").
		WithData("symbol", sym))
	return true, nil
}

// Remove deletes symbol and persists the set. Removing a symbol that is not
// a favorite persists nothing but is still reported to the user.
func (s *Store) Remove(ctx context.Context, symbol string) (removed bool, err error) {
	sym := normalize(symbol)
	if sym == "" {
		err := exchange.NewError(exchange.KindInvalidState, "remove_favorite", "symbol is required")
		s.notify(ctx, notifications.Failure(notifications.OperationRemoveFavorite, err))
		return false, err
	}

	s.mu.Lock()
	idx := slices.Index(s.symbols, sym)
	if idx < 0 {
		s.mu.Unlock()
		s.notify(ctx, notifications.Info(notifications.OperationRemoveFavorite, sym+" is not a favorite").
			WithData("symbol", sym))
		return false, nil
	}
	next := slices.Delete(slices.Clone(s.symbols), idx, idx+1)
	err = s.commitLocked(ctx, next)
	s.mu.Unlock()

	if err != nil {
		err = exchange.OperationFailed("remove_favorite", err)
		s.notify(ctx, notifications.Failure(notifications.OperationRemoveFavorite, err))
		return false, err
	}

	s.notify(ctx, notifications.Info(notifications.OperationRemoveFavorite, sym+" removed from favorites").
		WithData("symbol", sym))
	return true, nil
}

// Toggle adds symbol if absent and removes it otherwise. It reports whether
// symbol is a favorite afterwards.
func (s *Store) Toggle(ctx context.Context, symbol string) (bool, error) {
	if s.Contains(symbol) {
		if _, err := s.Remove(ctx, symbol); err != nil {
			return true, err
		}
		return false, nil
	}
	if _, err := s.Add(ctx, symbol); err != nil {
		return false, err
	}
	return true, nil
}

// commitLocked persists next and installs it only if the write succeeded.
// Callers hold s.mu.
func (s *Store) commitLocked(ctx context.Context, next []string) error {
	if err := s.backend.Save(ctx, next); err != nil {
		s.log.Error().
			Err(err).
			Str("backend", s.backend.Name()).
			Msg("Failed to persist favorites")
		return err
	}
	s.symbols = next
	metrics.SetFavoritesCount(len(next))
	return nil
}

func (s *Store) notify(ctx context.Context, n notifications.Notification) {
	metrics.RecordNotification(string(n.Level))
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("operation", string(n.Operation)).Msg("Failed to deliver notification")
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
