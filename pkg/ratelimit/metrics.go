package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// limiterTokens tracks the available token count.
	limiterTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotefeed_ratelimit_tokens",
		Help: "Currently available rate limit tokens",
	})

	// limiterGranted tracks granted acquisitions by priority.
	limiterGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_ratelimit_granted_total",
		Help: "Total granted rate limit acquisitions by priority",
	}, []string{"priority"})

	// limiterDenied tracks denied acquisitions by priority.
	limiterDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_ratelimit_denied_total",
		Help: "Total denied rate limit acquisitions by priority",
	}, []string{"priority"})

	// limiterViolations tracks explicit upstream rate-limit-exceeded signals.
	limiterViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefeed_ratelimit_violations_total",
		Help: "Total upstream rate-limit-exceeded responses observed",
	})

	// limiterBackoffFactor tracks the current backoff penalty.
	limiterBackoffFactor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotefeed_ratelimit_backoff_factor",
		Help: "Current adaptive backoff factor (1.0 = nominal rate)",
	})
)
