// Package ratelimit implements the priority-weighted token bucket that gates
// every outbound call to the brokerage API. Tokens refill continuously at
// the configured requests-per-minute rate; an explicit rate-limit-exceeded
// signal from upstream shrinks the effective refill rate multiplicatively,
// and the penalty decays back to nominal after clean windows with no
// further violations.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Config holds the limiter configuration.
type Config struct {
	// RequestsPerMinute is the nominal upstream capacity.
	RequestsPerMinute int

	// BurstCapacity is the extra headroom above nominal capacity the
	// bucket may accumulate while idle.
	BurstCapacity int

	// BackoffFactor multiplies the penalty on every upstream rate-limit
	// violation and divides it on decay. Defaults to 2.0.
	BackoffFactor float64

	// MaxBackoffFactor caps the penalty growth. Defaults to 32.
	MaxBackoffFactor float64

	// Window is the accounting window for backoff decay. Defaults to
	// one minute.
	Window time.Duration

	// CleanWindows is how many consecutive violation-free windows must
	// elapse before one decay step. Defaults to 2.
	CleanWindows int

	// MaxWait caps the duration reported by WaitHint. Defaults to 5m.
	MaxWait time.Duration

	// Clock is the time source; tests inject a mock.
	Clock clock.Clock
}

func (c *Config) applyDefaults() {
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	if c.MaxBackoffFactor <= 1 {
		c.MaxBackoffFactor = 32.0
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.CleanWindows <= 0 {
		c.CleanWindows = 2
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 5 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Limiter is a token bucket with priority-weighted acquisition and adaptive
// backoff. It never blocks; callers decide whether to wait, requeue, or
// fail when denied.
type Limiter struct {
	mu sync.Mutex

	capacity     float64
	burst        float64
	refillPerSec float64

	tokens     float64
	lastRefill time.Time

	backoff       float64
	backoffFactor float64
	maxBackoff    float64

	window       time.Duration
	windowStart  time.Time
	violated     bool
	cleanStreak  int
	cleanWindows int

	maxWait time.Duration

	granted       uint64
	denied        uint64
	rateLimitHits uint64

	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a limiter. The bucket starts full: a freshly started collector
// may immediately use its nominal per-window capacity.
func New(cfg Config) (*Limiter, error) {
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive (got %d)", cfg.RequestsPerMinute)
	}
	if cfg.BurstCapacity < 0 {
		return nil, fmt.Errorf("burst capacity must not be negative (got %d)", cfg.BurstCapacity)
	}
	cfg.applyDefaults()

	now := cfg.Clock.Now()
	l := &Limiter{
		capacity:      float64(cfg.RequestsPerMinute),
		burst:         float64(cfg.BurstCapacity),
		refillPerSec:  float64(cfg.RequestsPerMinute) / 60.0,
		tokens:        float64(cfg.RequestsPerMinute),
		lastRefill:    now,
		backoff:       1.0,
		backoffFactor: cfg.BackoffFactor,
		maxBackoff:    cfg.MaxBackoffFactor,
		window:        cfg.Window,
		windowStart:   now,
		cleanWindows:  cfg.CleanWindows,
		maxWait:       cfg.MaxWait,
		clock:         cfg.Clock,
		logger:        log.With().Str("component", "ratelimit").Logger(),
	}

	limiterTokens.Set(l.tokens)
	limiterBackoffFactor.Set(l.backoff)
	return l, nil
}

// TryAcquire attempts to consume tokens for one request of the given
// priority. Higher priorities consume fewer tokens, so under contention
// CRITICAL and HIGH requests are granted while NORMAL and LOW are denied.
// Never blocks.
func (l *Limiter) TryAcquire(p quote.Priority) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())

	cost := p.TokenCost()
	if l.tokens < cost {
		l.denied++
		limiterDenied.WithLabelValues(p.String()).Inc()
		return false
	}

	l.tokens -= cost
	l.granted++
	limiterGranted.WithLabelValues(p.String()).Inc()
	limiterTokens.Set(l.tokens)
	return true
}

// OnRateLimitExceeded records an explicit rate-limit-exceeded response from
// upstream. The effective refill rate shrinks multiplicatively and decays
// back to nominal only after CleanWindows violation-free windows.
func (l *Limiter) OnRateLimitExceeded() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())

	l.rateLimitHits++
	l.violated = true
	l.cleanStreak = 0
	l.backoff = math.Min(l.maxBackoff, l.backoff*l.backoffFactor)

	limiterViolations.Inc()
	limiterBackoffFactor.Set(l.backoff)

	l.logger.Warn().
		Float64("backoff_factor", l.backoff).
		Float64("tokens", l.tokens).
		Msg("Upstream rate limit exceeded - shrinking refill rate")
}

// WaitHint returns the recommended wait before retrying an acquisition.
// Returns 0 when at least one token is available.
func (l *Limiter) WaitHint() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())

	if l.tokens >= 1.0 {
		return 0
	}

	needed := 1.0 - l.tokens
	rate := l.refillPerSec / l.backoff
	wait := time.Duration(needed / rate * float64(time.Second))
	if wait > l.maxWait {
		wait = l.maxWait
	}
	return wait
}

// Snapshot returns the current limiter state for health reporting.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())

	return State{
		Capacity:      l.capacity,
		BurstCapacity: l.burst,
		Tokens:        l.tokens,
		BackoffFactor: l.backoff,
		Granted:       l.granted,
		Denied:        l.denied,
		RateLimitHits: l.rateLimitHits,
	}
}

// refill adds tokens for the elapsed time at the backoff-adjusted rate and
// advances the decay accounting. Callers must hold l.mu.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.tokens = math.Min(l.capacity+l.burst, l.tokens+elapsed*l.refillPerSec/l.backoff)
		l.lastRefill = now
		limiterTokens.Set(l.tokens)
	}

	// Advance whole windows and decay the penalty after enough clean ones.
	for now.Sub(l.windowStart) >= l.window {
		if l.violated {
			l.cleanStreak = 0
		} else {
			l.cleanStreak++
		}
		l.violated = false
		l.windowStart = l.windowStart.Add(l.window)

		if l.backoff > 1.0 && l.cleanStreak >= l.cleanWindows {
			l.backoff = math.Max(1.0, l.backoff/l.backoffFactor)
			l.cleanStreak = 0
			limiterBackoffFactor.Set(l.backoff)

			l.logger.Info().
				Float64("backoff_factor", l.backoff).
				Msg("Rate limit backoff decayed after clean windows")
		}
	}
}
