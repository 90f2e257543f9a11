// cmd/marketfeed/main.go
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/config"
	"github.com/NPascu6/npascu-marketfeed/internal/feed"
	"github.com/NPascu6/npascu-marketfeed/internal/metrics"
	"github.com/NPascu6/npascu-marketfeed/internal/models"
	"github.com/NPascu6/npascu-marketfeed/internal/redisfan"
	"github.com/NPascu6/npascu-marketfeed/internal/session"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Starting market feed")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	registry := metrics.NewRegistry()

	// Optional Redis mirror
	var publisher session.Publisher
	if cfg.RedisEnabled() {
		redisClient, err := redisfan.NewClient(cfg.Redis, sugar)
		if err != nil {
			sugar.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		publisher = redisClient
	} else {
		sugar.Info("Redis not configured; mirror disabled")
	}

	manager := feed.NewManager(cfg, publisher, registry, sugar)
	defer manager.Close()

	// Follow the configured symbols and keep their latest snapshots for
	// the debug endpoint.
	cache := newStateCache()
	for _, sub := range cfg.Symbols {
		depth := sub.Depth
		if depth == 0 {
			depth = cfg.Depth
		}
		subscription, err := manager.Subscribe(sub.Symbol, depth)
		if err != nil {
			sugar.Fatalf("Failed to subscribe to %s: %v", sub.Symbol, err)
		}
		go cache.follow(subscription)
		sugar.Infof("Following %s at depth %d", sub.Symbol, depth)
	}

	go startHTTPServer(cfg.MetricsPort, cache, sugar)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	sugar.Info("Received shutdown signal, shutting down gracefully...")
}

// stateCache keeps the latest published snapshot per symbol for the
// debug endpoint.
type stateCache struct {
	mu     sync.RWMutex
	states map[string]models.MarketState
}

func newStateCache() *stateCache {
	return &stateCache{states: make(map[string]models.MarketState)}
}

func (c *stateCache) follow(sub *feed.Subscription) {
	for state := range sub.States {
		c.mu.Lock()
		c.states[sub.Symbol] = state
		c.mu.Unlock()
	}
}

func (c *stateCache) get(symbol string) (models.MarketState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[symbol]
	return state, ok
}

func startHTTPServer(port int, cache *stateCache, logger *zap.SugaredLogger) {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Latest snapshot for a followed symbol
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		state, ok := cache.get(symbol)
		if !ok {
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
			return
		}
		data, err := state.ToJSON()
		if err != nil {
			http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Infof("Starting HTTP server on %s", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("HTTP server failed: %v", err)
	}
}
