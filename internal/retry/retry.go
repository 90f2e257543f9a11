// internal/retry/retry.go
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int // 0 = infinite
	Multiplier      float64
	Jitter          bool
}

// Forever runs fn in a loop with exponential backoff until ctx is
// cancelled or MaxRetries consecutive failures occur. A nil error from
// fn resets the backoff; fn is expected to block for the lifetime of
// whatever it established (e.g. a transport connection) and return when
// it drops.
func Forever(ctx context.Context, cfg Config, logger *zap.SugaredLogger, name string, fn func() error) {
	interval := cfg.InitialInterval
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := fn()
		if err == nil {
			interval = cfg.InitialInterval
			failures = 0
			continue
		}

		failures++
		if cfg.MaxRetries > 0 && failures >= cfg.MaxRetries {
			logger.Errorf("[%s] giving up after %d attempts: %v", name, failures, err)
			return
		}

		logger.Warnf("[%s] attempt failed: %v. Retrying in %v", name, err, interval)

		select {
		case <-time.After(interval):
			interval = time.Duration(float64(interval) * cfg.Multiplier)
			if interval > cfg.MaxInterval {
				interval = cfg.MaxInterval
			}
			// ±25% jitter to avoid thundering reconnects
			if cfg.Jitter {
				interval += time.Duration(float64(interval) * 0.25 * (2*rand.Float64() - 1))
			}
		case <-ctx.Done():
			return
		}
	}
}

// CircuitBreaker gates repeated attempts against a failing dependency.
// Used to keep REST seed retries from storming a dead API.
type CircuitBreaker struct {
	threshold int
	timeout   time.Duration
	failures  int
	state     string // "CLOSED", "OPEN", "HALF_OPEN"
	lastFail  time.Time
	mu        sync.Mutex
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, timeout: timeout, state: "CLOSED"}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "OPEN" {
		if time.Since(cb.lastFail) > cb.timeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.state = "CLOSED"
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = "OPEN"
		cb.lastFail = time.Now()
	}
}
