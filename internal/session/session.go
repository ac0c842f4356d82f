// Package session holds the state of one trading session against an exchange
// gateway: connection lifecycle, balances, orders and the price feed bound to
// the connection.
package session

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/market"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

// Status is the connection state of a session
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
)

// DefaultSymbol is the symbol a new session is focused on
const DefaultSymbol = "BTCUSDT"

func (s Status) gauge() int {
	switch s {
	case StatusConnecting:
		return metrics.StatusConnecting
	case StatusConnected:
		return metrics.StatusConnected
	default:
		return metrics.StatusDisconnected
	}
}

// Snapshot is a read-only copy of the session state
type Snapshot struct {
	Status        Status             `json:"status"`
	Gateway       string             `json:"gateway"`
	CurrentSymbol string             `json:"current_symbol"`
	Balances      []exchange.Balance `json:"balances"`
	Orders        []exchange.Order   `json:"orders"`
	Pending       int                `json:"pending"`
	ConnectedAt   *time.Time         `json:"connected_at,omitempty"`
}

// Session is the trading session state manager. All state is guarded by one
// mutex; gateway calls run outside it and their effects are applied when
// they return, so operations never interleave their effects.
type Session struct {
	mu sync.Mutex

	// lifecycle serializes gateway connects with gateway teardown
	lifecycle sync.Mutex

	gateway  exchange.Gateway
	feed     *market.Feed
	notifier notifications.Notifier

	status        Status
	credential    exchange.Credential
	balances      []exchange.Balance
	orders        []exchange.Order
	currentSymbol string
	pending       int
	connectedAt   time.Time

	// epoch changes on every connect attempt and every disconnect; an
	// operation whose epoch is stale when it resumes is discarded
	epoch    uint64
	connects singleflight.Group

	// attempted is the last epoch whose gateway connect ran, attemptErr its
	// outcome; late joiners of a finished attempt read it instead of dialing
	attempted  uint64
	attemptErr error

	// feedCtx bounds the feed across connections; cancelled by Close
	feedCtx    context.Context
	feedCancel context.CancelFunc

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// Option customizes a Session
type Option func(*Session)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator replaces the order id generator
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) { s.newID = gen }
}

// WithLogger replaces the session logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.log = logger }
}

// New creates a disconnected session. A nil feed gets a default one; a nil
// notifier discards notifications.
func New(gateway exchange.Gateway, feed *market.Feed, notifier notifications.Notifier, opts ...Option) *Session {
	if feed == nil {
		feed = market.NewFeed(config.FeedConfig{})
	}
	if notifier == nil {
		notifier = notifications.Discard{}
	}

	feedCtx, feedCancel := context.WithCancel(context.Background())
	s := &Session{
		gateway:       gateway,
		feed:          feed,
		notifier:      notifier,
		status:        StatusDisconnected,
		currentSymbol: DefaultSymbol,
		feedCtx:       feedCtx,
		feedCancel:    feedCancel,
		now:           time.Now,
		newID:         uuid.NewString,
		log:           config.NewLogger("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.SetConnectionStatus(metrics.StatusDisconnected)

	return s
}

// Connect authenticates against the gateway, seeds balances and orders from
// its baseline and starts the price feed. Calls made while an attempt is in
// flight join it and observe its result; a call on a connected session is a
// no-op. A Disconnect issued during the attempt supersedes it.
func (s *Session) Connect(ctx context.Context, cred exchange.Credential) error {
	start := time.Now()
	op := notifications.OperationConnect

	if !cred.Valid() {
		err := exchange.NewError(exchange.KindInvalidCredential, string(op), "API key and secret are required")
		return s.fail(ctx, op, start, err)
	}

	s.mu.Lock()
	switch s.status {
	case StatusConnected:
		s.mu.Unlock()
		return nil
	case StatusDisconnected:
		s.epoch++
		s.setStatusLocked(StatusConnecting)
		s.pending++
	}
	epoch := s.epoch
	s.mu.Unlock()

	_, err, shared := s.connects.Do(strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		return nil, s.connect(ctx, cred, epoch, start)
	})
	if shared {
		s.log.Debug().Uint64("epoch", epoch).Msg("Joined in-flight connection attempt")
	}
	return err
}

func (s *Session) connect(ctx context.Context, cred exchange.Credential, epoch uint64, start time.Time) error {
	op := notifications.OperationConnect

	s.mu.Lock()
	if s.attempted == epoch {
		err := s.attemptErr
		s.mu.Unlock()
		return err
	}
	s.attempted = epoch
	s.mu.Unlock()

	s.log.Info().
		Str("gateway", s.gateway.Name()).
		Str("credential", cred.String()).
		Msg("Connecting")

	s.lifecycle.Lock()
	account, err := s.gateway.Connect(ctx, cred)
	s.lifecycle.Unlock()

	s.mu.Lock()
	s.pending--
	if s.epoch != epoch || s.status != StatusConnecting {
		// a newer attempt may own the gateway by now
		release := err == nil && s.status == StatusDisconnected
		superseded := exchange.NewError(exchange.KindInvalidState, string(op), "connection attempt superseded by disconnect")
		s.attemptErr = superseded
		s.mu.Unlock()
		if release {
			s.release()
		}
		return s.fail(ctx, op, start, superseded)
	}

	if err != nil {
		err = exchange.AsDomainError(string(op), err)
		s.attemptErr = err
		s.setStatusLocked(StatusDisconnected)
		s.mu.Unlock()
		return s.fail(ctx, op, start, err)
	}

	s.attemptErr = nil

	s.credential = cred
	s.balances = slices.Clone(account.Balances)
	s.orders = make([]exchange.Order, 0, len(account.Orders))
	for _, o := range account.Orders {
		o = o.Clone()
		o.ID = s.newID()
		s.orders = append(s.orders, o)
	}
	s.connectedAt = s.now()
	s.setStatusLocked(StatusConnected)
	metrics.SetOpenOrders(countOpen(s.orders))
	s.feed.Start(s.feedCtx)
	balances, orders := len(s.balances), len(s.orders)
	s.mu.Unlock()

	s.log.Info().
		Str("gateway", s.gateway.Name()).
		Int("balances", balances).
		Int("orders", orders).
		Msg("Connected")

	s.succeed(ctx, op, start, notifications.Success(op, "Connected to exchange").
		WithData("gateway", s.gateway.Name()))
	return nil
}

// Disconnect clears balances and orders and halts the price feed before
// returning. Disconnecting a disconnected session is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	start := time.Now()
	op := notifications.OperationDisconnect

	s.mu.Lock()
	if s.status == StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	wasConnecting := s.status == StatusConnecting
	s.epoch++
	s.setStatusLocked(StatusDisconnected)
	s.balances = nil
	s.orders = nil
	s.connectedAt = time.Time{}
	metrics.SetOpenOrders(0)
	s.mu.Unlock()

	// an aborted attempt releases the gateway itself when it returns
	if !wasConnecting {
		s.release()
	}

	s.log.Info().Bool("aborted_connect", wasConnecting).Msg("Disconnected")
	s.succeed(ctx, op, start, notifications.Info(op, "Disconnected from exchange"))
	return nil
}

// Close disconnects and releases the feed context. The session is unusable
// afterwards.
func (s *Session) Close(ctx context.Context) error {
	err := s.Disconnect(ctx)
	s.feedCancel()
	return err
}

// SymbolPrice returns the last simulated price of symbol
func (s *Session) SymbolPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := s.feed.Price(normalizeSymbol(symbol))
	if !ok {
		return decimal.Zero, false
	}
	return p.Price, true
}

// Prices returns every tracked symbol price
func (s *Session) Prices() []market.SymbolPrice {
	return s.feed.Prices()
}

// SetCurrentSymbol changes the symbol the view is focused on
func (s *Session) SetCurrentSymbol(symbol string) error {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return exchange.NewError(exchange.KindInvalidState, "set_current_symbol", "symbol is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSymbol = sym
	return nil
}

// CurrentSymbol is the symbol the view is focused on
func (s *Session) CurrentSymbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSymbol
}

// Status returns the connection status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Credential returns the credential of the last successful connection
func (s *Session) Credential() exchange.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// Balances returns a copy of the balances
func (s *Session) Balances() []exchange.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBalances(s.balances)
}

// Orders returns a copy of every order in the session
func (s *Session) Orders() []exchange.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrders(s.orders)
}

// OpenOrders returns a copy of the orders that can still be cancelled
func (s *Session) OpenOrders() []exchange.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]exchange.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Status == exchange.OrderStatusNew {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Snapshot returns a consistent copy of the whole session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Status:        s.status,
		Gateway:       s.gateway.Name(),
		CurrentSymbol: s.currentSymbol,
		Balances:      cloneBalances(s.balances),
		Orders:        cloneOrders(s.orders),
		Pending:       s.pending,
	}
	if !s.connectedAt.IsZero() {
		at := s.connectedAt
		snap.ConnectedAt = &at
	}
	return snap
}

// FeedRunning reports whether the price feed is ticking
func (s *Session) FeedRunning() bool {
	return s.feed.Running()
}

// begin reserves an operation slot on a connected session. It returns the
// epoch the operation must still be in when it resumes.
func (s *Session) begin(op notifications.Operation) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusConnected {
		return 0, exchange.NewError(exchange.KindInvalidState, string(op), "not connected")
	}
	s.pending++
	return s.epoch, nil
}

// resumeLocked ends an operation slot and reports whether the session it
// started on is still current. Callers hold s.mu.
func (s *Session) resumeLocked(op notifications.Operation, epoch uint64) error {
	s.pending--
	if s.epoch != epoch {
		return exchange.NewError(exchange.KindInvalidState, string(op), "session disconnected while the operation was in flight")
	}
	return nil
}

func (s *Session) setStatusLocked(status Status) {
	s.status = status
	metrics.SetConnectionStatus(status.gauge())
}

// release halts the feed and closes the gateway unless a newer connection
// already owns them
func (s *Session) release() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	owned := s.status == StatusConnected
	s.mu.Unlock()
	if owned {
		return
	}

	s.feed.Stop()
	s.closeGateway()
}

func (s *Session) closeGateway() {
	if c, ok := s.gateway.(interface{ Close() }); ok {
		c.Close()
	}
}

func (s *Session) succeed(ctx context.Context, op notifications.Operation, start time.Time, n notifications.Notification) {
	metrics.RecordOperation(string(op), float64(time.Since(start).Milliseconds()), "")
	s.emit(ctx, n)
}

// fail records err, notifies the user and returns err
func (s *Session) fail(ctx context.Context, op notifications.Operation, start time.Time, err error) error {
	kind := exchange.KindOf(err)
	metrics.RecordOperation(string(op), float64(time.Since(start).Milliseconds()), string(kind))

	s.log.Warn().
		Err(err).
		Str("operation", string(op)).
		Str("kind", string(kind)).
		Msg("Operation failed")

	s.emit(ctx, notifications.Failure(op, err).WithData("kind", string(kind)))
	return err
}

func (s *Session) emit(ctx context.Context, n notifications.Notification) {
	metrics.RecordNotification(string(n.Level))
	// delivery outlives a cancelled request context
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.log.Warn().Err(err).Str("operation", string(n.Operation)).Msg("Failed to deliver notification")
	}
}

func cloneBalances(in []exchange.Balance) []exchange.Balance {
	if in == nil {
		return []exchange.Balance{}
	}
	return slices.Clone(in)
}

func cloneOrders(in []exchange.Order) []exchange.Order {
	out := make([]exchange.Order, len(in))
	for i, o := range in {
		out[i] = o.Clone()
	}
	return out
}

func countOpen(orders []exchange.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == exchange.OrderStatusNew {
			n++
		}
	}
	return n
}
