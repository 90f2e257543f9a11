// internal/stream/conn.go
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/models"
	"github.com/NPascu6/npascu-marketfeed/internal/retry"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	pingPeriod       = 15 * time.Second
)

// Handlers receives push events and lifecycle transitions from the hub
// connection. All callbacks are invoked from the connection's read
// goroutine; OnConnected is the place to (re)assert subscriptions,
// since they do not survive a transport-level reconnect.
type Handlers struct {
	OnBookUpdates  func(updates []models.BookUpdateMsg)
	OnTrade        func(symbol string, tick models.TradeTick)
	OnQuote        func(symbol string, tick models.QuoteTick)
	OnConnected    func()
	OnReconnecting func()
	// OnDisconnected fires when the reconnect loop gives up (MaxRetries
	// exhausted). It does not fire on an explicit Close.
	OnDisconnected func()
}

// Conn is one persistent hub connection with automatic reconnect.
type Conn struct {
	url      string
	cfg      retry.Config
	logger   *zap.SugaredLogger
	handlers Handlers

	mu      sync.Mutex
	ws      *websocket.Conn
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConn(url string, cfg retry.Config, logger *zap.SugaredLogger, handlers Handlers) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		url:      url,
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs the connect/read loop in the background. Reconnects use
// the configured backoff; Close stops everything.
func (c *Conn) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		retry.Forever(c.ctx, c.cfg, c.logger, "hub", c.runOnce)
		if c.ctx.Err() == nil && c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected()
		}
	}()
}

// Close tears the connection down and stops the reconnect loop. Safe to
// call at any point of the lifecycle, including before Start.
func (c *Conn) Close() {
	c.cancel()

	c.mu.Lock()
	started := c.started
	if c.ws != nil {
		c.ws.Close()
	}
	c.mu.Unlock()

	if started {
		<-c.done
	}
}

// Invoke sends a hub invocation (e.g. Subscribe/Unsubscribe). Callers
// treat failures as best-effort.
func (c *Conn) Invoke(target string, args ...interface{}) error {
	frame, err := invocation(target, args...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("invoke %s: not connected", target)
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// runOnce dials, handshakes, and reads until the connection drops. A
// drop after a successful handshake returns nil so the backoff resets
// and the redial is immediate; failed attempts return the error and
// back off.
func (c *Conn) runOnce() error {
	established, err := c.connectAndRead()
	if c.ctx.Err() != nil {
		// Shutting down; suppress the reconnect notification.
		return err
	}
	if c.handlers.OnReconnecting != nil {
		c.handlers.OnReconnecting()
	}
	if established {
		return nil
	}
	return err
}

func (c *Conn) connectAndRead() (bool, error) {
	c.logger.Infof("Connecting to market hub at %s", c.url)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}

	if err := c.handshake(ws); err != nil {
		ws.Close()
		return false, err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	c.logger.Info("Connected to market hub")
	if c.handlers.OnConnected != nil {
		c.handlers.OnConnected()
	}

	stopPing := make(chan struct{})
	go c.pingLoop(stopPing)

	readErr := c.readLoop(ws)

	close(stopPing)
	c.mu.Lock()
	c.ws = nil
	c.mu.Unlock()
	ws.Close()

	return true, readErr
}

func (c *Conn) handshake(ws *websocket.Conn) error {
	frame, err := encodeFrame(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("handshake write: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	frames := splitFrames(data)
	if len(frames) == 0 {
		return fmt.Errorf("handshake: empty response")
	}
	var resp handshakeResponse
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		return fmt.Errorf("handshake decode: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("handshake rejected: %s", resp.Error)
	}

	// Frames after the handshake response belong to the stream proper.
	for _, f := range frames[1:] {
		c.processFrame(f)
	}
	return nil
}

func (c *Conn) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.ws != nil {
				c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.ws.WriteMessage(websocket.TextMessage, pingFrame()); err != nil {
					c.logger.Warnf("Ping failed: %v", err)
				}
			}
			c.mu.Unlock()
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		for _, frame := range splitFrames(data) {
			c.processFrame(frame)
		}
	}
}

func (c *Conn) processFrame(data []byte) {
	var msg hubMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warnf("Dropping malformed hub frame: %v", err)
		return
	}

	switch msg.Type {
	case msgTypeInvocation:
		c.dispatch(msg)
	case msgTypePing:
		// Server keepalive; our own ping loop covers the reverse path.
	case msgTypeClose:
		if msg.Error != "" {
			c.logger.Warnf("Hub closed the connection: %s", msg.Error)
		}
	}
}

func (c *Conn) dispatch(msg hubMessage) {
	switch msg.Target {
	case "orderBookUpdate":
		if len(msg.Arguments) < 1 || c.handlers.OnBookUpdates == nil {
			return
		}
		updates, err := decodeBookUpdates(msg.Arguments[len(msg.Arguments)-1])
		if err != nil {
			c.logger.Warnf("Dropping malformed orderBookUpdate: %v", err)
			return
		}
		c.handlers.OnBookUpdates(updates)

	case "ReceiveTrade":
		if len(msg.Arguments) < 2 || c.handlers.OnTrade == nil {
			return
		}
		var symbol string
		var tick models.TradeTick
		if err := json.Unmarshal(msg.Arguments[0], &symbol); err != nil {
			return
		}
		if err := json.Unmarshal(msg.Arguments[1], &tick); err != nil {
			c.logger.Warnf("Dropping malformed ReceiveTrade: %v", err)
			return
		}
		c.handlers.OnTrade(symbol, tick)

	case "ReceiveQuote":
		if len(msg.Arguments) < 2 || c.handlers.OnQuote == nil {
			return
		}
		var symbol string
		var tick models.QuoteTick
		if err := json.Unmarshal(msg.Arguments[0], &symbol); err != nil {
			return
		}
		if err := json.Unmarshal(msg.Arguments[1], &tick); err != nil {
			c.logger.Warnf("Dropping malformed ReceiveQuote: %v", err)
			return
		}
		c.handlers.OnQuote(symbol, tick)
	}
}

// decodeBookUpdates accepts both wire shapes: a single update object or
// an array of updates.
func decodeBookUpdates(raw json.RawMessage) ([]models.BookUpdateMsg, error) {
	var batch []models.BookUpdateMsg
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}
	var single models.BookUpdateMsg
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []models.BookUpdateMsg{single}, nil
}
