// internal/book/book.go
package book

import "sort"

// Side selects which ladder of the book an update targets.
type Side int

const (
	Bid Side = iota + 1
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Level is one price level in the book.
type Level struct {
	Price float64 `json:"price" msgpack:"price"`
	Size  float64 `json:"size" msgpack:"size"`
}

// OrderBook holds bounded-depth sorted ladders for both sides.
// Bids are sorted descending by price, asks ascending. Values are
// treated as immutable: Apply and FromSnapshot always return fresh
// slices, so a previously obtained OrderBook stays valid for readers.
type OrderBook struct {
	Bids []Level `json:"bids" msgpack:"bids"`
	Asks []Level `json:"asks" msgpack:"asks"`
}

// Update is a single incremental instruction: set the level at Price
// to Size, or remove it when Size is zero.
type Update struct {
	Side  Side
	Price float64
	Size  float64
}

// Apply folds one update into the book and returns a new OrderBook.
// The input book must already satisfy the sort/dedup/depth invariants;
// the result satisfies them too. Prices are matched by exact equality:
// the upstream feed echoes back a stable price representation. The
// untouched side is copied so both returned slices are fresh references.
func Apply(b OrderBook, u Update, depth int) OrderBook {
	var side []Level
	if u.Side == Bid {
		side = b.Bids
	} else {
		side = b.Asks
	}

	next := make([]Level, 0, len(side)+1)
	found := false
	for _, lvl := range side {
		if lvl.Price == u.Price {
			found = true
			if u.Size == 0 {
				continue // removal
			}
			next = append(next, Level{Price: u.Price, Size: u.Size})
			continue
		}
		next = append(next, lvl)
	}
	if !found && u.Size != 0 {
		next = append(next, Level{Price: u.Price, Size: u.Size})
	}

	sortSide(next, u.Side)
	if len(next) > depth {
		next = next[:depth]
	}

	if u.Side == Bid {
		return OrderBook{Bids: next, Asks: copyLevels(b.Asks)}
	}
	return OrderBook{Bids: copyLevels(b.Bids), Asks: next}
}

// FromSnapshot normalizes a REST snapshot into a valid OrderBook:
// zero/negative sizes are dropped, both sides are sorted and truncated
// to depth.
func FromSnapshot(bids, asks []Level, depth int) OrderBook {
	return OrderBook{
		Bids: normalize(bids, Bid, depth),
		Asks: normalize(asks, Ask, depth),
	}
}

func normalize(levels []Level, side Side, depth int) []Level {
	out := make([]Level, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Size <= 0 {
			continue
		}
		out = append(out, lvl)
	}
	sortSide(out, side)
	if len(out) > depth {
		out = out[:depth]
	}
	return out
}

func sortSide(levels []Level, side Side) {
	if side == Bid {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	} else {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	}
}

func copyLevels(levels []Level) []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// BestBid returns the top bid level, if any.
func (b OrderBook) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level, if any.
func (b OrderBook) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}
