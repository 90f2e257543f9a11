package book

import (
	"reflect"
	"testing"
)

func bid(price, size float64) Update { return Update{Side: Bid, Price: price, Size: size} }
func ask(price, size float64) Update { return Update{Side: Ask, Price: price, Size: size} }

func applyAll(b OrderBook, depth int, updates ...Update) OrderBook {
	for _, u := range updates {
		b = Apply(b, u, depth)
	}
	return b
}

func checkInvariants(t *testing.T, b OrderBook, depth int) {
	t.Helper()
	if len(b.Bids) > depth {
		t.Fatalf("bids exceed depth %d: %v", depth, b.Bids)
	}
	if len(b.Asks) > depth {
		t.Fatalf("asks exceed depth %d: %v", depth, b.Asks)
	}
	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price >= b.Bids[i-1].Price {
			t.Fatalf("bids not strictly descending: %v", b.Bids)
		}
	}
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price <= b.Asks[i-1].Price {
			t.Fatalf("asks not strictly ascending: %v", b.Asks)
		}
	}
}

func TestInsertKeepsDescendingBids(t *testing.T) {
	b := applyAll(OrderBook{}, 10, bid(100, 1), bid(101, 2))

	want := []Level{{101, 2}, {100, 1}}
	if !reflect.DeepEqual(b.Bids, want) {
		t.Fatalf("bids = %v, want %v", b.Bids, want)
	}
	checkInvariants(t, b, 10)
}

func TestInsertKeepsAscendingAsks(t *testing.T) {
	b := applyAll(OrderBook{}, 10, ask(105, 1), ask(103, 2), ask(104, 3))

	want := []Level{{103, 2}, {104, 3}, {105, 1}}
	if !reflect.DeepEqual(b.Asks, want) {
		t.Fatalf("asks = %v, want %v", b.Asks, want)
	}
	checkInvariants(t, b, 10)
}

func TestRemoveLevel(t *testing.T) {
	b := applyAll(OrderBook{}, 10, bid(100, 1), bid(101, 2))
	b = Apply(b, bid(100, 0), 10)

	want := []Level{{101, 2}}
	if !reflect.DeepEqual(b.Bids, want) {
		t.Fatalf("bids = %v, want %v", b.Bids, want)
	}
}

func TestRemoveMissingLevelIsNoop(t *testing.T) {
	b := applyAll(OrderBook{}, 10, bid(100, 1))
	got := Apply(b, bid(99, 0), 10)

	if !reflect.DeepEqual(got.Bids, b.Bids) || !reflect.DeepEqual(got.Asks, b.Asks) {
		t.Fatalf("expected no-op, got %v", got)
	}
}

func TestLastWriteWinsOnSamePrice(t *testing.T) {
	b := applyAll(OrderBook{}, 10, bid(100, 1), bid(100, 7))

	want := []Level{{100, 7}}
	if !reflect.DeepEqual(b.Bids, want) {
		t.Fatalf("bids = %v, want %v", b.Bids, want)
	}
}

func TestDepthTruncationKeepsBestBids(t *testing.T) {
	b := applyAll(OrderBook{}, 3, bid(100, 1), bid(99, 1), bid(98, 1), bid(97, 1), bid(96, 1))

	want := []Level{{100, 1}, {99, 1}, {98, 1}}
	if !reflect.DeepEqual(b.Bids, want) {
		t.Fatalf("bids = %v, want %v", b.Bids, want)
	}
}

func TestDepthBoundHoldsDuringAscendingInserts(t *testing.T) {
	// Ascending insertion order: each new bid is the best seen so far.
	prices := []float64{10, 20, 30, 40, 50}
	b := OrderBook{}
	for i, p := range prices {
		b = Apply(b, bid(p, 1), 3)
		checkInvariants(t, b, 3)
		if want := min(i+1, 3); len(b.Bids) != want {
			t.Fatalf("after %d inserts, len = %d, want %d", i+1, len(b.Bids), want)
		}
		if b.Bids[0].Price != p {
			t.Fatalf("best bid = %v, want %v", b.Bids[0].Price, p)
		}
	}
}

func TestWorsePricedInsertIsDroppedAtCapacity(t *testing.T) {
	b := applyAll(OrderBook{}, 3, ask(10, 1), ask(11, 1), ask(12, 1))
	b = Apply(b, ask(13, 1), 3)

	want := []Level{{10, 1}, {11, 1}, {12, 1}}
	if !reflect.DeepEqual(b.Asks, want) {
		t.Fatalf("asks = %v, want %v", b.Asks, want)
	}
}

func TestDepthOneKeepsSingleBestLevel(t *testing.T) {
	b := applyAll(OrderBook{}, 1, bid(100, 1), bid(99, 1), bid(101, 1), ask(102, 1), ask(101.5, 1))

	if len(b.Bids) != 1 || b.Bids[0].Price != 101 {
		t.Fatalf("bids = %v, want single level at 101", b.Bids)
	}
	if len(b.Asks) != 1 || b.Asks[0].Price != 101.5 {
		t.Fatalf("asks = %v, want single level at 101.5", b.Asks)
	}
}

func TestApplyReturnsFreshSlices(t *testing.T) {
	b := applyAll(OrderBook{}, 10, bid(100, 1), ask(101, 1))
	next := Apply(b, bid(99, 1), 10)

	// Mutating the result must not leak into the prior snapshot.
	next.Asks[0].Size = 42
	if b.Asks[0].Size != 1 {
		t.Fatal("untouched side shares backing array with prior snapshot")
	}
}

func TestReducerIsPure(t *testing.T) {
	b := applyAll(OrderBook{}, 10, bid(100, 1), bid(99, 2))
	u := bid(100, 5)

	first := Apply(b, u, 10)
	second := Apply(b, u, 10)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same inputs produced different outputs: %v vs %v", first, second)
	}
	if b.Bids[0].Size != 1 {
		t.Fatal("input book was mutated")
	}
}

func TestFromSnapshotNormalizes(t *testing.T) {
	b := FromSnapshot(
		[]Level{{99, 1}, {101, 2}, {100, 0}, {98, 3}},
		[]Level{{104, 1}, {102, 2}, {103, -1}},
		2,
	)

	wantBids := []Level{{101, 2}, {99, 1}}
	wantAsks := []Level{{102, 2}, {104, 1}}
	if !reflect.DeepEqual(b.Bids, wantBids) {
		t.Fatalf("bids = %v, want %v", b.Bids, wantBids)
	}
	if !reflect.DeepEqual(b.Asks, wantAsks) {
		t.Fatalf("asks = %v, want %v", b.Asks, wantAsks)
	}
	checkInvariants(t, b, 2)
}

func TestRandomLikeSequenceHoldsInvariants(t *testing.T) {
	updates := []Update{
		bid(100, 1), ask(101, 1), bid(100.5, 2), bid(100, 0),
		ask(100.8, 3), ask(101, 0), bid(99, 4), ask(102, 1),
		bid(100.5, 1), ask(100.8, 0), bid(98, 1), bid(97, 1),
	}
	b := OrderBook{}
	for _, u := range updates {
		b = Apply(b, u, 3)
		checkInvariants(t, b, 3)
		seen := map[float64]bool{}
		for _, lvl := range b.Bids {
			if seen[lvl.Price] {
				t.Fatalf("duplicate bid price %v", lvl.Price)
			}
			seen[lvl.Price] = true
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
