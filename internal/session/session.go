// internal/session/session.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/book"
	"github.com/NPascu6/npascu-marketfeed/internal/metrics"
	"github.com/NPascu6/npascu-marketfeed/internal/models"
	"github.com/NPascu6/npascu-marketfeed/internal/retry"
	"github.com/NPascu6/npascu-marketfeed/internal/stream"
)

// Transport is the streaming connection a session owns. Satisfied by
// *stream.Conn; faked in tests.
type Transport interface {
	Start()
	Close()
	Invoke(target string, args ...interface{}) error
}

// Seeder fetches the best-effort REST snapshots used to seed state
// before the stream catches up. Satisfied by *rest.Client.
type Seeder interface {
	GetQuoteSnapshot(ctx context.Context, symbol string) (*models.Quote, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (book.OrderBook, error)
}

// Publisher mirrors published ticks to a downstream sink (the Redis
// fan-out). A nil Publisher disables mirroring.
type Publisher interface {
	PublishQuote(symbol string, q models.Quote) error
	PublishTrade(symbol string, tr models.Trade) error
}

type Options struct {
	Symbol        string
	Depth         int
	FrameInterval time.Duration
	TradeTapeSize int

	// Dial builds the transport around the session's event handlers.
	Dial func(stream.Handlers) Transport

	Seeder      Seeder                // nil disables seeding
	Publisher   Publisher             // nil disables the mirror
	SeedBreaker *retry.CircuitBreaker // nil disables the seed guard
	Metrics     *metrics.Registry
	Logger      *zap.SugaredLogger
}

// Session owns the live MarketState for one (symbol, depth) pair. It
// seeds from REST, folds streamed book updates through the reducer on a
// frame boundary, and publishes immutable state snapshots to
// subscribers. All failure is reflected through the Status field; the
// session never surfaces an error to consumers.
type Session struct {
	id      string
	opts    Options
	logger  *zap.SugaredLogger
	metrics *metrics.Registry

	transport Transport

	seedCtx    context.Context
	seedCancel context.CancelFunc

	mu         sync.Mutex
	state      models.MarketState
	queue      []book.Update
	drainTimer *time.Timer
	bookLive   bool // a streamed update has touched the book
	closed     bool
	subs       map[int64]chan models.MarketState
	nextSubID  int64
}

func New(opts Options) *Session {
	if opts.Depth < 1 {
		opts.Depth = 10
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	if opts.TradeTapeSize < 1 {
		opts.TradeTapeSize = 100
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}

	seedCtx, seedCancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &Session{
		id:         id,
		opts:       opts,
		logger:     opts.Logger.With("session", id[:8], "symbol", opts.Symbol),
		metrics:    opts.Metrics,
		seedCtx:    seedCtx,
		seedCancel: seedCancel,
		subs:       make(map[int64]chan models.MarketState),
		state: models.MarketState{
			Symbol: opts.Symbol,
			Status: models.StatusIdle,
		},
	}
	s.transport = opts.Dial(stream.Handlers{
		OnBookUpdates:  s.onBookUpdates,
		OnTrade:        s.onTrade,
		OnQuote:        s.onQuote,
		OnConnected:    s.onConnected,
		OnReconnecting: s.onReconnecting,
		OnDisconnected: s.onDisconnected,
	})
	return s
}

// Start seeds state and opens the streaming connection. Seeding is
// concurrent and best-effort: either fetch may fail without preventing
// the streaming phase.
func (s *Session) Start() {
	s.setStatus(models.StatusConnecting)
	s.metrics.SessionOpened()

	if s.opts.Seeder != nil {
		go s.seedQuote()
		go s.seedBook()
	}

	s.transport.Start()
}

// Close tears the session down: in-flight seeds are cancelled, a
// pending drain is dropped, Unsubscribe is attempted best-effort, and
// the transport is closed. No publication happens after Close returns.
// Idempotent, and safe even if seeding or connecting never completed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state.Status = models.StatusDisconnected
	if s.drainTimer != nil {
		s.drainTimer.Stop()
		s.drainTimer = nil
	}
	s.queue = nil
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	s.seedCancel()

	if err := s.transport.Invoke("Unsubscribe", s.opts.Symbol); err != nil {
		s.logger.Debugf("Best-effort unsubscribe failed: %v", err)
	}
	s.transport.Close()

	s.metrics.SessionClosed()
	s.metrics.RecordStatus(s.opts.Symbol, int(models.StatusDisconnected))
	s.logger.Info("Session closed")
}

// Subscribe registers a consumer. The channel always carries the most
// recent state: a slow consumer skips intermediate snapshots rather
// than lagging behind. The channel is closed on session teardown.
func (s *Session) Subscribe() (int64, <-chan models.MarketState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	ch := make(chan models.MarketState, 1)
	if !s.closed {
		s.subs[id] = ch
		// Hand the current state to the new consumer right away.
		ch <- s.state
	} else {
		close(ch)
	}
	return id, ch
}

// Unsubscribe removes a consumer registered with Subscribe.
func (s *Session) Unsubscribe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// State returns the current snapshot.
func (s *Session) State() models.MarketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ─── streaming handlers ───────────────────────────────────────────────

func (s *Session) onConnected() {
	s.setStatus(models.StatusConnected)

	// Subscriptions do not survive a reconnect; reassert every time.
	if err := s.transport.Invoke("Subscribe", s.opts.Symbol); err != nil {
		s.logger.Warnf("Subscribe failed: %v", err)
		s.metrics.RecordError(s.opts.Symbol, "subscribe")
	}
}

func (s *Session) onReconnecting() {
	s.setStatus(models.StatusReconnecting)
}

// onDisconnected fires when the transport's reconnect policy gives up.
// The session stays alive; the terminal status is visible to consumers.
func (s *Session) onDisconnected() {
	s.setStatus(models.StatusDisconnected)
}

// onBookUpdates queues updates and schedules at most one drain per
// frame. Updates are folded in arrival order; only their publication is
// batched.
func (s *Session) onBookUpdates(msgs []models.BookUpdateMsg) {
	s.metrics.RecordMessage(s.opts.Symbol, "orderBookUpdate")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			s.logger.Warnf("Dropping invalid book update: %v", err)
			s.metrics.RecordError(s.opts.Symbol, "invalid_update")
			continue
		}
		s.queue = append(s.queue, m.ToUpdate())
	}
	if len(s.queue) == 0 {
		return
	}

	if s.drainTimer == nil {
		s.drainTimer = time.AfterFunc(s.opts.FrameInterval, s.drain)
	}
}

// drain folds everything queued since the last frame through the
// reducer and publishes a single new book.
func (s *Session) drain() {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.drainTimer = nil
	if len(s.queue) == 0 {
		return
	}

	queued := s.queue
	s.queue = nil

	b := s.state.Book
	for _, u := range queued {
		b = book.Apply(b, u, s.opts.Depth)
	}
	s.state.Book = b
	s.bookLive = true
	s.publishLocked()

	s.metrics.RecordDrain(s.opts.Symbol, len(queued), time.Since(start))
	if bid, ok := b.BestBid(); ok {
		if ask, ok2 := b.BestAsk(); ok2 {
			s.metrics.RecordTopOfBook(s.opts.Symbol, bid.Price, ask.Price)
		}
	}
}

// onTrade maps a trade tick onto the tape. The upstream feed does not
// label aggressor side, so it is inferred from the previous trade:
// a falling price reads as a sell, anything else as a buy.
func (s *Session) onTrade(symbol string, tick models.TradeTick) {
	if symbol != s.opts.Symbol {
		return
	}
	s.metrics.RecordMessage(s.opts.Symbol, "ReceiveTrade")
	if err := tick.Validate(); err != nil {
		s.logger.Warnf("Dropping invalid trade tick: %v", err)
		s.metrics.RecordError(s.opts.Symbol, "invalid_trade")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	side := models.TradeBuy
	if len(s.state.Trades) > 0 && tick.P < s.state.Trades[0].Price {
		side = models.TradeSell
	}
	trade := models.Trade{Price: tick.P, Size: tick.V, Side: side, TS: tick.T}

	tape := make([]models.Trade, 0, len(s.state.Trades)+1)
	tape = append(tape, trade)
	tape = append(tape, s.state.Trades...)
	if len(tape) > s.opts.TradeTapeSize {
		tape = tape[:s.opts.TradeTapeSize]
	}
	s.state.Trades = tape
	s.publishLocked()
	s.mu.Unlock()

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishTrade(symbol, trade); err != nil {
			s.logger.Warnf("Trade mirror failed: %v", err)
			s.metrics.RecordError(s.opts.Symbol, "mirror")
		}
	}
}

// onQuote replaces the quote wholesale.
func (s *Session) onQuote(symbol string, tick models.QuoteTick) {
	if symbol != s.opts.Symbol {
		return
	}
	s.metrics.RecordMessage(s.opts.Symbol, "ReceiveQuote")
	if err := tick.Validate(); err != nil {
		s.logger.Warnf("Dropping invalid quote tick: %v", err)
		s.metrics.RecordError(s.opts.Symbol, "invalid_quote")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	quote := models.Quote{Last: tick.C, Percent: tick.DP}
	if prev := s.state.Quote; prev != nil {
		quote.Bid = prev.Bid
		quote.Ask = prev.Ask
	}
	if bid, ok := s.state.Book.BestBid(); ok {
		quote.Bid = bid.Price
	}
	if ask, ok := s.state.Book.BestAsk(); ok {
		quote.Ask = ask.Price
	}
	s.state.Quote = &quote
	s.publishLocked()
	s.mu.Unlock()

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishQuote(symbol, quote); err != nil {
			s.logger.Warnf("Quote mirror failed: %v", err)
			s.metrics.RecordError(s.opts.Symbol, "mirror")
		}
	}
}

// ─── seeding ──────────────────────────────────────────────────────────

func (s *Session) seedQuote() {
	if !s.seedAllowed() {
		return
	}
	q, err := s.opts.Seeder.GetQuoteSnapshot(s.seedCtx, s.opts.Symbol)
	s.recordSeedResult(err == nil)
	if err != nil {
		// Non-fatal: the stream will populate the quote eventually.
		s.logger.Warnf("Quote seed failed: %v", err)
		s.metrics.RecordSeedFailure(s.opts.Symbol, "snapshot")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A late response after teardown or after live data is stale.
	if s.closed || s.state.Quote != nil {
		return
	}
	s.state.Quote = q
	s.publishLocked()
}

func (s *Session) seedBook() {
	if !s.seedAllowed() {
		return
	}
	b, err := s.opts.Seeder.GetOrderBook(s.seedCtx, s.opts.Symbol, s.opts.Depth)
	s.recordSeedResult(err == nil)
	if err != nil {
		s.logger.Warnf("Book seed failed: %v", err)
		s.metrics.RecordSeedFailure(s.opts.Symbol, "orderbook")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Streamed updates win over a late snapshot.
	if s.closed || s.bookLive {
		return
	}
	s.state.Book = b
	s.publishLocked()
}

func (s *Session) seedAllowed() bool {
	if s.opts.SeedBreaker == nil {
		return true
	}
	if s.opts.SeedBreaker.Allow() {
		return true
	}
	s.logger.Warn("Seed skipped: breaker open")
	return false
}

func (s *Session) recordSeedResult(ok bool) {
	if s.opts.SeedBreaker != nil {
		s.opts.SeedBreaker.RecordResult(ok)
	}
}

// ─── publication ──────────────────────────────────────────────────────

func (s *Session) setStatus(status models.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state.Status == status {
		return
	}
	s.state.Status = status
	s.metrics.RecordStatus(s.opts.Symbol, int(status))
	s.logger.Infof("Status: %s", status)
	s.publishLocked()
}

// publishLocked fans the current state out to every subscriber. Each
// channel holds at most the latest snapshot: a stale queued value is
// replaced rather than blocking the feed.
func (s *Session) publishLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- s.state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s.state:
			default:
			}
		}
	}
}
