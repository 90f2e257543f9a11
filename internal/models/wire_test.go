package models

import (
	"math"
	"testing"

	"github.com/NPascu6/npascu-marketfeed/internal/book"
)

func TestBookUpdateMsgValidate(t *testing.T) {
	cases := []struct {
		name string
		msg  BookUpdateMsg
		want error
	}{
		{"valid bid", BookUpdateMsg{Side: "bid", Price: 100, Size: 1}, nil},
		{"valid removal", BookUpdateMsg{Side: "ask", Price: 100, Size: 0}, nil},
		{"bad side", BookUpdateMsg{Side: "buy", Price: 100, Size: 1}, ErrInvalidSide},
		{"nan price", BookUpdateMsg{Side: "bid", Price: math.NaN(), Size: 1}, ErrNonFinite},
		{"inf size", BookUpdateMsg{Side: "bid", Price: 100, Size: math.Inf(1)}, ErrNonFinite},
		{"negative size", BookUpdateMsg{Side: "bid", Price: 100, Size: -1}, ErrNegativeSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.Validate(); got != tc.want {
				t.Fatalf("Validate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBookUpdateMsgToUpdate(t *testing.T) {
	u := BookUpdateMsg{Side: "ask", Price: 101.5, Size: 3}.ToUpdate()
	want := book.Update{Side: book.Ask, Price: 101.5, Size: 3}
	if u != want {
		t.Fatalf("ToUpdate() = %+v, want %+v", u, want)
	}
}

func TestTradeTickValidate(t *testing.T) {
	if err := (TradeTick{P: 100, V: 1, T: 1}).Validate(); err != nil {
		t.Fatalf("valid trade rejected: %v", err)
	}
	if err := (TradeTick{P: 0, V: 1}).Validate(); err != ErrInvalidPrice {
		t.Fatalf("zero price: got %v, want %v", err, ErrInvalidPrice)
	}
}

func TestQuoteTickValidate(t *testing.T) {
	if err := (QuoteTick{C: 42.1, DP: -0.5}).Validate(); err != nil {
		t.Fatalf("valid quote rejected: %v", err)
	}
	if err := (QuoteTick{C: math.Inf(-1)}).Validate(); err != ErrNonFinite {
		t.Fatalf("inf price: got %v, want %v", err, ErrNonFinite)
	}
}
