// Package metrics holds the Prometheus collectors shared by the stream, transport,
// relay and submission components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// Stream metrics
	StreamUpdates     *prometheus.CounterVec
	StreamReconnects  *prometheus.CounterVec
	StreamSubscribers *prometheus.GaugeVec
	ExtractedTrades   *prometheus.CounterVec
	HighestSlotSeen   prometheus.Gauge

	// Transport metrics
	RPCNodeFailures *prometheus.CounterVec
	RPCFallbacks    prometheus.Counter
	RPCCallLatency  *prometheus.HistogramVec

	// Relay metrics
	RelaySends        *prometheus.CounterVec
	RelayQueueWaiting *prometheus.GaugeVec

	// Submission metrics
	SubmitOutcomes      *prometheus.CounterVec
	ConfirmationLatency *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solanatrade"
	}
	f := promauto.With(reg)

	return &Metrics{
		StreamUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "updates_total",
			Help:      "Total number of geyser updates received by kind",
		}, []string{"kind"}),
		StreamReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnects by connection",
		}, []string{"connection"}),
		StreamSubscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of subscribers by form",
		}, []string{"form"}),
		ExtractedTrades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "trades_total",
			Help:      "Total number of trades extracted by venue",
		}, []string{"venue"}),
		HighestSlotSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "highest_slot_seen",
			Help:      "Highest slot number seen on the stream",
		}),

		RPCNodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "node_failures_total",
			Help:      "Total number of failed RPC calls by tier",
		}, []string{"tier"}),
		RPCFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "fallbacks_total",
			Help:      "Total number of calls that fell back from the basic to the performance tier",
		}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),

		RelaySends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sends_total",
			Help:      "Total number of relay send attempts by relay and result",
		}, []string{"relay", "result"}),
		RelayQueueWaiting: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "queue_waiting",
			Help:      "Current number of sends waiting for rate limit admission",
		}, []string{"relay"}),

		SubmitOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "outcomes_total",
			Help:      "Total number of send-and-confirm outcomes by channel",
		}, []string{"channel", "outcome"}),
		ConfirmationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from send to confirmation in seconds",
			Buckets:   []float64{0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6, 60},
		}, []string{"channel"}),
	}
}

// Discard returns collectors registered on a private registry, for callers
// that do not export metrics.
func Discard() *Metrics {
	return New("", prometheus.NewRegistry())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
