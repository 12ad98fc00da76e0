package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks fresh cache hits.
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quotefeed_cache_hits_total",
			Help: "Total number of quote cache hits",
		},
	)

	// cacheMisses tracks misses, including expired-entry misses.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quotefeed_cache_misses_total",
			Help: "Total number of quote cache misses",
		},
	)

	// cacheEvictions tracks entries dropped by the LRU capacity bound.
	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quotefeed_cache_evictions_total",
			Help: "Total number of quote cache entries evicted or removed",
		},
	)

	// cacheExpired tracks entries dropped because their TTL elapsed.
	cacheExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quotefeed_cache_expired_total",
			Help: "Total number of quote cache entries dropped after TTL expiry",
		},
	)

	// cacheEntries tracks the current entry count.
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quotefeed_cache_entries",
			Help: "Current number of entries in the quote cache",
		},
	)
)
