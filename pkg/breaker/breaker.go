// Package breaker implements the circuit breaker that isolates a failing
// upstream. While the circuit is open the dispatcher fails fast without
// contacting the brokerage API; after the recovery timeout a single probe
// call decides whether the circuit closes again.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Status is the breaker state.
type Status string

const (
	// StatusClosed: upstream healthy, calls pass through.
	StatusClosed Status = "closed"

	// StatusOpen: upstream failing, calls are short-circuited.
	StatusOpen Status = "open"

	// StatusHalfOpen: recovery timeout elapsed, one probe call is allowed.
	StatusHalfOpen Status = "half_open"
)

// Config holds the breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before allowing
	// a probe.
	RecoveryTimeout time.Duration

	// Clock is the time source; tests inject a mock.
	Clock clock.Clock
}

// Breaker tracks upstream health through consecutive failures.
type Breaker struct {
	mu sync.Mutex

	status              Status
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool

	failureThreshold int
	recoveryTimeout  time.Duration

	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a breaker in the closed state.
func New(cfg Config) (*Breaker, error) {
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive (got %d)", cfg.FailureThreshold)
	}
	if cfg.RecoveryTimeout <= 0 {
		return nil, fmt.Errorf("recovery timeout must be positive (got %v)", cfg.RecoveryTimeout)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	b := &Breaker{
		status:           StatusClosed,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		clock:            cfg.Clock,
		logger:           log.With().Str("component", "breaker").Logger(),
	}
	b.setStateGauge()
	return b, nil
}

// Allow reports whether a call may proceed. While open it returns false
// until the recovery timeout elapses, at which point the breaker moves to
// half-open and admits exactly one probe; further calls are denied until
// that probe's outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case StatusClosed:
		return true

	case StatusOpen:
		if b.clock.Now().Sub(b.openedAt) < b.recoveryTimeout {
			breakerShortCircuits.Inc()
			return false
		}
		b.transition(StatusHalfOpen)
		b.probeInFlight = true
		return true

	case StatusHalfOpen:
		if b.probeInFlight {
			breakerShortCircuits.Inc()
			return false
		}
		b.probeInFlight = true
		return true

	default:
		return false
	}
}

// RecordSuccess marks a successful call. A successful half-open probe
// closes the circuit and resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.probeInFlight = false

	if b.status != StatusClosed {
		b.transition(StatusClosed)
	}
}

// RecordFailure marks a failed call. Reaching the failure threshold while
// closed opens the circuit; any failure while half-open re-opens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.probeInFlight = false

	switch b.status {
	case StatusClosed:
		if b.consecutiveFailures >= b.failureThreshold {
			b.openedAt = b.clock.Now()
			b.transition(StatusOpen)
		}
	case StatusHalfOpen:
		b.openedAt = b.clock.Now()
		b.transition(StatusOpen)
	}
}

// CancelProbe releases the half-open probe slot without recording an
// outcome. Used when the caller obtained Allow but could not place the
// call after all, e.g. because the rate limiter denied it; a later call
// may then claim the probe instead.
func (b *Breaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == StatusHalfOpen {
		b.probeInFlight = false
	}
}

// Status returns the current state.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// transition switches state and updates observability. Callers hold b.mu.
func (b *Breaker) transition(to Status) {
	from := b.status
	b.status = to
	b.setStateGauge()
	breakerTransitions.WithLabelValues(string(from), string(to)).Inc()

	event := b.logger.Info()
	if to == StatusOpen {
		event = b.logger.Error()
	}
	event.
		Str("from", string(from)).
		Str("to", string(to)).
		Int("consecutive_failures", b.consecutiveFailures).
		Msg("Circuit breaker state change")
}

func (b *Breaker) setStateGauge() {
	for _, s := range []Status{StatusClosed, StatusOpen, StatusHalfOpen} {
		v := 0.0
		if s == b.status {
			v = 1.0
		}
		breakerState.WithLabelValues(string(s)).Set(v)
	}
}
