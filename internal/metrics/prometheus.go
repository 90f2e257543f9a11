package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketfeed_messages_received_total",
		Help: "Total hub messages received by event type",
	}, []string{"symbol", "event"})

	UpdatesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketfeed_book_updates_applied_total",
		Help: "Total order-book updates folded into the book",
	}, []string{"symbol"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketfeed_errors_total",
		Help: "Total errors by symbol and type",
	}, []string{"symbol", "error_type"})

	SeedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketfeed_seed_failures_total",
		Help: "Total REST seed fetches that failed",
	}, []string{"symbol", "endpoint"})

	// Gauges
	ConnectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketfeed_connection_status",
		Help: "Streaming status (0=idle 1=connecting 2=connected 3=reconnecting 4=disconnected)",
	}, []string{"symbol"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketfeed_active_sessions",
		Help: "Number of live market stream sessions",
	})

	BestBid = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketfeed_best_bid",
		Help: "Current best bid price",
	}, []string{"symbol"})

	BestAsk = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketfeed_best_ask",
		Help: "Current best ask price",
	}, []string{"symbol"})

	// Histograms
	CoalescedBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketfeed_coalesced_batch_size",
		Help:    "Number of book updates folded per frame drain",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	}, []string{"symbol"})

	DrainDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketfeed_drain_duration_seconds",
		Help:    "Time to fold one frame's queued updates and publish",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"symbol"})
)

type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// RecordMessage records one received hub message.
func (r *Registry) RecordMessage(symbol, event string) {
	MessagesReceived.WithLabelValues(symbol, event).Inc()
}

// RecordError records an error event
func (r *Registry) RecordError(symbol, errorType string) {
	ErrorsTotal.WithLabelValues(symbol, errorType).Inc()
}

// RecordSeedFailure records a failed REST seed fetch.
func (r *Registry) RecordSeedFailure(symbol, endpoint string) {
	SeedFailures.WithLabelValues(symbol, endpoint).Inc()
}

// RecordStatus records the session's connection status as a gauge value.
func (r *Registry) RecordStatus(symbol string, status int) {
	ConnectionStatus.WithLabelValues(symbol).Set(float64(status))
}

// RecordDrain records one frame drain: how many updates were folded and
// how long the fold + publish took.
func (r *Registry) RecordDrain(symbol string, batchSize int, duration time.Duration) {
	UpdatesApplied.WithLabelValues(symbol).Add(float64(batchSize))
	CoalescedBatchSize.WithLabelValues(symbol).Observe(float64(batchSize))
	DrainDuration.WithLabelValues(symbol).Observe(duration.Seconds())
}

// RecordTopOfBook records the current best bid/ask prices.
func (r *Registry) RecordTopOfBook(symbol string, bid, ask float64) {
	if bid > 0 {
		BestBid.WithLabelValues(symbol).Set(bid)
	}
	if ask > 0 {
		BestAsk.WithLabelValues(symbol).Set(ask)
	}
}

// SessionOpened / SessionClosed track the live session gauge.
func (r *Registry) SessionOpened() { ActiveSessions.Inc() }
func (r *Registry) SessionClosed() { ActiveSessions.Dec() }
