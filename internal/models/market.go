// internal/models/market.go
package models

import (
	"encoding/json"

	"github.com/NPascu6/npascu-marketfeed/internal/book"
)

// TradeSide labels the aggressor direction of a trade. The upstream
// feed does not always label side, so it is inferred client-side by
// comparing against the previous trade's price.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// Trade is one executed trade on the tape.
type Trade struct {
	Price float64   `json:"price" msgpack:"price"`
	Size  float64   `json:"size" msgpack:"size"`
	Side  TradeSide `json:"side" msgpack:"side"`
	TS    int64     `json:"ts" msgpack:"ts"` // exchange timestamp (ms)
}

// Quote is a simplified top-of-book/last-price view.
type Quote struct {
	Bid     float64 `json:"bid" msgpack:"bid"`
	Ask     float64 `json:"ask" msgpack:"ask"`
	Last    float64 `json:"last" msgpack:"last"`
	Percent float64 `json:"percent,omitempty" msgpack:"percent,omitempty"` // 24h change
}

// ConnectionStatus tracks the streaming transport lifecycle.
type ConnectionStatus int

const (
	StatusIdle ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarketState is the full published view for one (symbol, depth) pair.
// It is replaced wholesale on every publication and never mutated in
// place, so a consumer holding a previous snapshot never observes a
// partial update.
type MarketState struct {
	Symbol string           `json:"symbol"`
	Book   book.OrderBook   `json:"book"`
	Trades []Trade          `json:"trades"` // newest first, capped
	Quote  *Quote           `json:"quote,omitempty"`
	Status ConnectionStatus `json:"status"`
}

// ToJSON renders the state for debug endpoints.
func (m MarketState) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
