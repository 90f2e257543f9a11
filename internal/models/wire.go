// internal/models/wire.go
package models

import (
	"math"

	"github.com/NPascu6/npascu-marketfeed/internal/book"
)

// Wire DTOs for the market hub and REST endpoints.

// BookUpdateMsg is one incremental order-book instruction as it appears
// on the wire. Size 0 removes the level.
type BookUpdateMsg struct {
	Side  string  `json:"side"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Validate checks a book update before it is queued.
func (m BookUpdateMsg) Validate() error {
	if m.Side != "bid" && m.Side != "ask" {
		return ErrInvalidSide
	}
	if !isFinite(m.Price) || !isFinite(m.Size) {
		return ErrNonFinite
	}
	if m.Size < 0 {
		return ErrNegativeSize
	}
	return nil
}

// ToUpdate converts a validated message into a reducer update.
func (m BookUpdateMsg) ToUpdate() book.Update {
	side := book.Bid
	if m.Side == "ask" {
		side = book.Ask
	}
	return book.Update{Side: side, Price: m.Price, Size: m.Size}
}

// TradeTick is the hub's ReceiveTrade payload.
type TradeTick struct {
	P float64 `json:"p"` // price
	V float64 `json:"v"` // volume
	T int64   `json:"t"` // timestamp (ms)
}

func (t TradeTick) Validate() error {
	if !isFinite(t.P) || !isFinite(t.V) {
		return ErrNonFinite
	}
	if t.P <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// QuoteTick is the hub's ReceiveQuote payload.
type QuoteTick struct {
	C  float64 `json:"c"`            // current price
	DP float64 `json:"dp,omitempty"` // percent change
}

func (q QuoteTick) Validate() error {
	if !isFinite(q.C) {
		return ErrNonFinite
	}
	if q.C <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// QuoteSnapshot is the REST /api/snapshot/{symbol} response.
type QuoteSnapshot struct {
	Symbol  string  `json:"symbol"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Last    float64 `json:"last"`
	Percent float64 `json:"percent,omitempty"`
}

// ToQuote converts the snapshot into the published quote shape.
func (q QuoteSnapshot) ToQuote() *Quote {
	return &Quote{Bid: q.Bid, Ask: q.Ask, Last: q.Last, Percent: q.Percent}
}

// BookSnapshot is the REST /api/orderbook/{symbol} response.
type BookSnapshot struct {
	Symbol string       `json:"symbol"`
	Bids   []book.Level `json:"bids"`
	Asks   []book.Level `json:"asks"`
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Errors
var (
	ErrInvalidSide  = &WireError{"side must be bid or ask"}
	ErrNonFinite    = &WireError{"price and size must be finite"}
	ErrNegativeSize = &WireError{"size must be >= 0"}
	ErrInvalidPrice = &WireError{"price must be positive"}
)

type WireError struct {
	Message string
}

func (e *WireError) Error() string {
	return e.Message
}
