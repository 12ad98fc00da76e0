package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesReleased counts sealed batches by what sealed them.
	batchesReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_batches_released_total",
		Help: "Total batches released by trigger (size, timeout, drain)",
	}, []string{"trigger"})

	// batchSize observes distinct keys per released batch.
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotefeed_batch_size_keys",
		Help:    "Distinct keys per released batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	// batchDedupedKeys counts requests that piggybacked on a key already
	// in their batch.
	batchDedupedKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefeed_batch_deduped_keys_total",
		Help: "Total requests coalesced onto an existing key in their batch",
	})
)
