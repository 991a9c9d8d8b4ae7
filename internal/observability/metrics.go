// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	MessagesReceived  prometheus.Counter
	MessagesDecoded   prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	StreamReconnects  prometheus.Counter
	StreamConnected   prometheus.Gauge
	FilterFallbacks   prometheus.Counter
	HighestSlotSeen   prometheus.Gauge
	DedupCacheSize    prometheus.Gauge

	// Detection metrics
	EventsEmitted *prometheus.CounterVec

	// Backfill metrics
	BackfillRuns      *prometheus.CounterVec
	BackfillRecovered prometheus.Counter
	BackfillDuration  prometheus.Histogram

	// Dispatch metrics
	NotifyErrors *prometheus.CounterVec
	WSClients    prometheus.Gauge

	// Latency metrics
	ProcessingLatency prometheus.Histogram
	RPCCallLatency    *prometheus.HistogramVec

	// Price metrics
	PriceFetchErrors *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "blinkstream"
	}
	f := promauto.With(reg)

	return &Metrics{
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Total number of transaction notifications received",
		}),
		MessagesDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_decoded_total",
			Help:      "Total number of notifications decoded into token transfers",
		}),
		DuplicatesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of transactions skipped as already processed",
		}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		StreamConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while a stream session is open",
		}),
		FilterFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "filter_fallbacks_total",
			Help:      "Total number of scoped filter rejections",
		}),
		HighestSlotSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		DedupCacheSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dedup_cache_size",
			Help:      "Number of signatures held by the dedup cache",
		}),

		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "events_emitted_total",
			Help:      "Total number of events emitted by kind",
		}, []string{"event"}),

		BackfillRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "runs_total",
			Help:      "Total number of backfill sweeps by status",
		}, []string{"status"}),
		BackfillRecovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "recovered_total",
			Help:      "Total number of events emitted from recovered transactions",
		}),
		BackfillDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "duration_seconds",
			Help:      "Backfill sweep duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		NotifyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "notify_errors_total",
			Help:      "Total number of failed notifications by event",
		}, []string{"event"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "ws_clients",
			Help:      "Number of connected websocket clients",
		}),

		ProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "processing_latency_seconds",
			Help:      "Time to decode and classify one notification",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		PriceFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed price lookups by asset",
		}, []string{"asset"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

var highestSlot atomic.Int64

// RecordMessage counts a received notification.
func RecordMessage() {
	DefaultMetrics.MessagesReceived.Inc()
}

// RecordDecoded counts a notification that produced transfers and tracks its slot.
func RecordDecoded(slot int64) {
	DefaultMetrics.MessagesDecoded.Inc()
	for {
		cur := highestSlot.Load()
		if slot <= cur {
			return
		}
		if highestSlot.CompareAndSwap(cur, slot) {
			DefaultMetrics.HighestSlotSeen.Set(float64(slot))
			return
		}
	}
}

// RecordDuplicate counts a skipped duplicate.
func RecordDuplicate() {
	DefaultMetrics.DuplicatesSkipped.Inc()
}

// RecordEvent counts an emitted event.
func RecordEvent(name string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(name).Inc()
}

// RecordNotifyError counts a failed notification.
func RecordNotifyError(name string) {
	DefaultMetrics.NotifyErrors.WithLabelValues(name).Inc()
}

// RecordReconnect counts a reconnect attempt.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordFilterFallback counts a scoped filter rejection.
func RecordFilterFallback() {
	DefaultMetrics.FilterFallbacks.Inc()
}

// SetConnected updates the stream connected gauge.
func SetConnected(connected bool) {
	if connected {
		DefaultMetrics.StreamConnected.Set(1)
		return
	}
	DefaultMetrics.StreamConnected.Set(0)
}

// SetDedupCacheSize updates the dedup cache gauge.
func SetDedupCacheSize(n int) {
	DefaultMetrics.DedupCacheSize.Set(float64(n))
}

// SetWSClients updates the websocket client gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordBackfill records a finished sweep.
func RecordBackfill(status string, recovered int, seconds float64) {
	DefaultMetrics.BackfillRuns.WithLabelValues(status).Inc()
	DefaultMetrics.BackfillRecovered.Add(float64(recovered))
	DefaultMetrics.BackfillDuration.Observe(seconds)
}

// RecordProcessingLatency records the time spent on one notification.
func RecordProcessingLatency(seconds float64) {
	DefaultMetrics.ProcessingLatency.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordPriceError counts a failed price lookup.
func RecordPriceError(asset string) {
	DefaultMetrics.PriceFetchErrors.WithLabelValues(asset).Inc()
}
