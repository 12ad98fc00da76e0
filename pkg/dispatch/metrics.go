package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_dispatch_fetches_total",
		Help: "Total logical quote fetches by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotefeed_dispatch_fetch_duration_seconds",
		Help:    "Logical fetch latency from enqueue to resolution",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	batchesDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_dispatch_batches_total",
		Help: "Batches handed to the upstream path by outcome",
	}, []string{"outcome"})

	batchesRequeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefeed_dispatch_batches_requeued_total",
		Help: "Batches deferred because the rate limiter denied them",
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_dispatch_retries_total",
		Help: "Transport retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotefeed_dispatch_retry_backoff_seconds",
		Help:    "Backoff slept before transport retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	inflightBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotefeed_dispatch_inflight_batches",
		Help: "Batches currently executing against the upstream",
	})
)
