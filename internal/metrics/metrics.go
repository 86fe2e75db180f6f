// Package metrics holds the process-wide Prometheus collectors shared by
// the hub, ingest and httpapi layers, registered on the default registry via
// github.com/prometheus/client_golang/prometheus/promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections counts live SSE subscribers on the Hub.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of currently connected stream subscribers.",
	})

	// HTTPRequestsTotal counts served HTTP requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests served, by route and status code.",
	}, []string{"route", "status"})

	// MessagesProcessedTotal counts feed records applied to the market.
	MessagesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messages_processed_total",
		Help: "Total MBO records applied to the market since startup.",
	})

	// ApplyLatencySeconds tracks per-message Market.Apply latency.
	ApplyLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apply_latency_seconds",
		Help:    "Latency of a single Market.Apply call.",
		Buckets: prometheus.DefBuckets,
	})
)
