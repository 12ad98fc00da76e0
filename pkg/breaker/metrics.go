package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// breakerState is a one-hot gauge of the current state.
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quotefeed_breaker_state",
		Help: "Circuit breaker state (1 for the active state)",
	}, []string{"state"})

	// breakerTransitions counts state changes.
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefeed_breaker_transitions_total",
		Help: "Total circuit breaker state transitions",
	}, []string{"from", "to"})

	// breakerShortCircuits counts calls denied without contacting upstream.
	breakerShortCircuits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefeed_breaker_short_circuits_total",
		Help: "Total calls denied while the circuit was open",
	})
)
