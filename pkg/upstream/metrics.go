package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transportRequestsTotal counts physical upstream calls by status.
	transportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_upstream_requests_total",
		Help: "Total physical upstream quote requests by status",
	}, []string{"status"})

	// transportRequestDuration observes physical call latency.
	transportRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotefeed_upstream_request_duration_seconds",
		Help:    "Upstream quote request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// transportBatchKeys observes keys per physical call.
	transportBatchKeys = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotefeed_upstream_batch_keys",
		Help:    "Number of instrument keys per physical upstream call",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)
