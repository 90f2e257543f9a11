// internal/feed/manager.go
package feed

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/config"
	"github.com/NPascu6/npascu-marketfeed/internal/metrics"
	"github.com/NPascu6/npascu-marketfeed/internal/models"
	"github.com/NPascu6/npascu-marketfeed/internal/rest"
	"github.com/NPascu6/npascu-marketfeed/internal/retry"
	"github.com/NPascu6/npascu-marketfeed/internal/session"
	"github.com/NPascu6/npascu-marketfeed/internal/stream"
)

// liveSession is what the manager needs from a session; satisfied by
// *session.Session.
type liveSession interface {
	Start()
	Close()
	Subscribe() (int64, <-chan models.MarketState)
	Unsubscribe(id int64)
}

type key struct {
	symbol string
	depth  int
}

type entry struct {
	sess liveSession
	refs int
}

// Manager hands out live MarketState subscriptions. One session exists
// per (symbol, depth) pair, created for the first subscriber and torn
// down when the last one leaves.
type Manager struct {
	cfg       *config.Config
	logger    *zap.SugaredLogger
	registry  *metrics.Registry
	publisher session.Publisher

	newSession func(symbol string, depth int) liveSession

	mu       sync.Mutex
	sessions map[key]*entry
	closed   bool
}

func NewManager(cfg *config.Config, publisher session.Publisher, registry *metrics.Registry, logger *zap.SugaredLogger) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		publisher: publisher,
		sessions:  make(map[key]*entry),
	}

	restClient := rest.NewClient(cfg.APIBaseURL, cfg.SeedTimeout, logger)
	reconnect := retry.Config{
		InitialInterval: cfg.Reconnect.InitialInterval,
		MaxInterval:     cfg.Reconnect.MaxInterval,
		MaxRetries:      cfg.Reconnect.MaxRetries,
		Multiplier:      cfg.Reconnect.Multiplier,
		Jitter:          cfg.Reconnect.Jitter,
	}
	seedBreaker := retry.NewCircuitBreaker(5, 30*time.Second)

	m.newSession = func(symbol string, depth int) liveSession {
		return session.New(session.Options{
			Symbol:        symbol,
			Depth:         depth,
			FrameInterval: cfg.FrameInterval,
			TradeTapeSize: cfg.TradeTapeSize,
			Seeder:        restClient,
			Publisher:     publisher,
			SeedBreaker:   seedBreaker,
			Metrics:       registry,
			Logger:        logger,
			Dial: func(h stream.Handlers) session.Transport {
				return stream.NewConn(cfg.HubURL, reconnect, logger, h)
			},
		})
	}
	return m
}

// Subscription is one consumer's read-only view of a live feed. States
// always carries the most recent snapshot; the channel is closed when
// the subscription or its session ends.
type Subscription struct {
	Symbol string
	Depth  int
	States <-chan models.MarketState

	once  sync.Once
	close func()
}

// Close releases the subscription. The backing session dies with its
// last subscriber.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// Subscribe attaches a consumer to the (symbol, depth) feed, starting a
// session if none is live.
func (m *Manager) Subscribe(symbol string, depth int) (*Subscription, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if depth < 1 {
		depth = m.cfg.Depth
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("feed manager is closed")
	}

	k := key{symbol: symbol, depth: depth}
	e, ok := m.sessions[k]
	if !ok {
		sess := m.newSession(symbol, depth)
		e = &entry{sess: sess}
		m.sessions[k] = e
		sess.Start()
		m.logger.Infof("Started session for %s (depth %d)", symbol, depth)
	}
	e.refs++

	subID, states := e.sess.Subscribe()
	return &Subscription{
		Symbol: symbol,
		Depth:  depth,
		States: states,
		close:  func() { m.release(k, subID) },
	}, nil
}

func (m *Manager) release(k key, subID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[k]
	if !ok {
		return
	}
	e.sess.Unsubscribe(subID)
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(m.sessions, k)
	e.sess.Close()
	m.logger.Infof("Stopped session for %s (depth %d)", k.symbol, k.depth)
}

// Close tears down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]liveSession, 0, len(m.sessions))
	for k, e := range m.sessions {
		sessions = append(sessions, e.sess)
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
