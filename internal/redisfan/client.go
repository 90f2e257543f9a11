// internal/redisfan/client.go
package redisfan

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/config"
	"github.com/NPascu6/npascu-marketfeed/internal/models"
)

const (
	QuoteStream  = "market_quotes"
	TradeStream  = "market_trades"
	StreamMaxLen = 10000
	QuotePrefix  = "quote:"
	TradePrefix  = "trade:"
)

// Client mirrors published quotes and trades to Redis so downstream
// consumers (the API, dashboards) can read them without holding a hub
// connection. Entries go to a capped stream and a pub/sub channel in
// one pipelined round trip.
type Client struct {
	rdb    *redis.Client
	logger *zap.SugaredLogger
	ctx    context.Context
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig, logger *zap.SugaredLogger) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis at %s", addr)

	return &Client{
		rdb:    rdb,
		logger: logger,
		ctx:    ctx,
	}, nil
}

type quoteRecord struct {
	Symbol string  `msgpack:"symbol"`
	Bid    float64 `msgpack:"bid"`
	Ask    float64 `msgpack:"ask"`
	Last   float64 `msgpack:"last"`
	Pct    float64 `msgpack:"pct,omitempty"`
	TS     int64   `msgpack:"ts"`
}

type tradeRecord struct {
	Symbol string  `msgpack:"symbol"`
	Price  float64 `msgpack:"price"`
	Size   float64 `msgpack:"size"`
	Side   string  `msgpack:"side"`
	TS     int64   `msgpack:"ts"`
}

// PublishQuote mirrors one quote to the quote stream and pub/sub channel.
func (c *Client) PublishQuote(symbol string, q models.Quote) error {
	rec := quoteRecord{
		Symbol: symbol,
		Bid:    q.Bid,
		Ask:    q.Ask,
		Last:   q.Last,
		Pct:    q.Percent,
		TS:     time.Now().UnixMilli(),
	}
	return c.publish(QuoteStream, QuotePrefix+symbol, rec)
}

// PublishTrade mirrors one trade to the trade stream and pub/sub channel.
func (c *Client) PublishTrade(symbol string, tr models.Trade) error {
	rec := tradeRecord{
		Symbol: symbol,
		Price:  tr.Price,
		Size:   tr.Size,
		Side:   string(tr.Side),
		TS:     tr.TS,
	}
	return c.publish(TradeStream, TradePrefix+symbol, rec)
}

func (c *Client) publish(stream, channel string, rec interface{}) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("msgpack marshal error: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.XAdd(c.ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Publish(c.ctx, channel, data)

	if _, err := pipe.Exec(c.ctx); err != nil {
		return fmt.Errorf("redis pipeline error: %w", err)
	}
	return nil
}

// LatestQuotes reads the newest count entries from the quote stream.
func (c *Client) LatestQuotes(count int64) ([]models.Quote, error) {
	messages, err := c.rdb.XRevRangeN(c.ctx, QuoteStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange error: %w", err)
	}

	quotes := make([]models.Quote, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var rec quoteRecord
		if err := msgpack.Unmarshal([]byte(data), &rec); err != nil {
			c.logger.Warnf("Failed to unmarshal quote: %v", err)
			continue
		}
		quotes = append(quotes, models.Quote{Bid: rec.Bid, Ask: rec.Ask, Last: rec.Last, Percent: rec.Pct})
	}
	return quotes, nil
}

// SubscribeQuotes opens a pub/sub subscription on quote channels
// matching pattern (e.g. "quote:*").
func (c *Client) SubscribeQuotes(pattern string) *redis.PubSub {
	return c.rdb.PSubscribe(c.ctx, pattern)
}

// Ping tests the connection
func (c *Client) Ping() error {
	return c.rdb.Ping(c.ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
