package exchange

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is shared by every metric BlockExchange exposes.
const MetricsSubsystem = "block_exchange"

// Metrics contains the gauges/counters BlockExchange publishes on its
// periodic progress tick (spec.md §4.4 step 5).
type Metrics struct {
	TopSeenHeight    metrics.Gauge
	PersistedHeight  metrics.Gauge
	OpenAnchors      metrics.Gauge
	BodyBacklog      metrics.Gauge
	InFlightRequests metrics.Gauge
	RequestsTimedOut metrics.Counter
	PeersPenalized   metrics.Counter
}

// PrometheusMetrics returns Metrics backed by the Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		TopSeenHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "top_seen_height",
			Help: "Highest block number observed from any peer.",
		}, labels).With(labelsAndValues...),
		PersistedHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "persisted_height",
			Help: "Highest block number persisted so far.",
		}, labels).With(labelsAndValues...),
		OpenAnchors: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "open_anchors",
			Help: "Number of unresolved header anchors.",
		}, labels).With(labelsAndValues...),
		BodyBacklog: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "body_backlog",
			Help: "Number of persisted headers still awaiting a body.",
		}, labels).With(labelsAndValues...),
		InFlightRequests: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "in_flight_requests",
			Help: "Total outstanding requests across all peers.",
		}, labels).With(labelsAndValues...),
		RequestsTimedOut: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "requests_timed_out_total",
			Help: "Requests that exceeded request_deadline.",
		}, labels).With(labelsAndValues...),
		PeersPenalized: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Subsystem: MetricsSubsystem, Name: "peers_penalized_total",
			Help: "Penalties applied to peers, by reason.",
		}, append(labels, "reason")).With(labelsAndValues...),
	}
}

// NopMetrics returns Metrics that discard everything, for tests and
// components constructed without a Prometheus registry.
func NopMetrics() *Metrics {
	return &Metrics{
		TopSeenHeight:    discard.NewGauge(),
		PersistedHeight:  discard.NewGauge(),
		OpenAnchors:      discard.NewGauge(),
		BodyBacklog:      discard.NewGauge(),
		InFlightRequests: discard.NewGauge(),
		RequestsTimedOut: discard.NewCounter(),
		PeersPenalized:   discard.NewCounter(),
	}
}
