package redisfan

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/config"
	"github.com/NPascu6/npascu-marketfeed/internal/models"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}
	c, err := NewClient(config.RedisConfig{
		Host:     mr.Host(),
		Port:     port,
		PoolSize: 2,
	}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestPublishQuoteRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)

	q := models.Quote{Bid: 100, Ask: 101, Last: 100.5, Percent: 1.5}
	if err := c.PublishQuote("BTCUSD", q); err != nil {
		t.Fatalf("PublishQuote: %v", err)
	}

	got, err := c.LatestQuotes(10)
	if err != nil {
		t.Fatalf("LatestQuotes: %v", err)
	}
	if len(got) != 1 || got[0] != q {
		t.Fatalf("round trip = %+v, want %+v", got, q)
	}

	if !mr.Exists(QuoteStream) {
		t.Fatal("quote stream not created")
	}
}

func TestPublishTrade(t *testing.T) {
	c, mr := newTestClient(t)

	tr := models.Trade{Price: 100.2, Size: 0.5, Side: models.TradeSell, TS: 1700000000000}
	if err := c.PublishTrade("ETHUSD", tr); err != nil {
		t.Fatalf("PublishTrade: %v", err)
	}
	if !mr.Exists(TradeStream) {
		t.Fatal("trade stream not created")
	}
}

func TestLatestQuotesNewestFirst(t *testing.T) {
	c, _ := newTestClient(t)

	for i := 1; i <= 3; i++ {
		q := models.Quote{Last: float64(i)}
		if err := c.PublishQuote("BTCUSD", q); err != nil {
			t.Fatalf("PublishQuote: %v", err)
		}
	}

	got, err := c.LatestQuotes(2)
	if err != nil {
		t.Fatalf("LatestQuotes: %v", err)
	}
	if len(got) != 2 || got[0].Last != 3 || got[1].Last != 2 {
		t.Fatalf("unexpected order: %+v", got)
	}
}
