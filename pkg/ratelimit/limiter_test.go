package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	cfg.Clock = mock
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return l, mock
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero rpm", cfg: Config{RequestsPerMinute: 0}},
		{name: "negative rpm", cfg: Config{RequestsPerMinute: -1}},
		{name: "negative burst", cfg: Config{RequestsPerMinute: 60, BurstCapacity: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestTryAcquireDrainsBucket(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 5})

	for i := 0; i < 5; i++ {
		if !l.TryAcquire(quote.PriorityNormal) {
			t.Fatalf("acquisition %d denied with tokens remaining", i)
		}
	}
	if l.TryAcquire(quote.PriorityNormal) {
		t.Error("acquisition granted on empty bucket")
	}
}

func TestRefillGrantsAfterElapse(t *testing.T) {
	// 60/min = 1 token per second.
	l, mock := newTestLimiter(t, Config{RequestsPerMinute: 60})

	for i := 0; i < 60; i++ {
		if !l.TryAcquire(quote.PriorityNormal) {
			t.Fatalf("initial drain denied at %d", i)
		}
	}
	if l.TryAcquire(quote.PriorityNormal) {
		t.Fatal("bucket should be empty")
	}

	mock.Add(2 * time.Second)

	if !l.TryAcquire(quote.PriorityNormal) {
		t.Error("expected a token after 2s refill")
	}
	if !l.TryAcquire(quote.PriorityNormal) {
		t.Error("expected a second token after 2s refill")
	}
	if l.TryAcquire(quote.PriorityNormal) {
		t.Error("expected denial after consuming refilled tokens")
	}
}

func TestRefillClampedToBurstCapacity(t *testing.T) {
	l, mock := newTestLimiter(t, Config{RequestsPerMinute: 60, BurstCapacity: 10})

	mock.Add(time.Hour)

	// Bucket must be clamped to capacity + burst = 70 tokens.
	granted := 0
	for l.TryAcquire(quote.PriorityNormal) {
		granted++
		if granted > 100 {
			t.Fatal("runaway grant loop; clamp not applied")
		}
	}
	if granted != 70 {
		t.Errorf("granted %d acquisitions after idle, want 70 (capacity + burst)", granted)
	}
}

func TestConservationOverWindow(t *testing.T) {
	// Property: over a window of length W, grants never exceed
	// capacity*(W/window)*(1 + burst allowance). Start from a drained
	// bucket so only refill contributes.
	l, mock := newTestLimiter(t, Config{RequestsPerMinute: 120, BurstCapacity: 12})

	for l.TryAcquire(quote.PriorityNormal) {
	}

	granted := 0
	for i := 0; i < 600; i++ { // 10 minutes in 1s steps
		mock.Add(time.Second)
		for l.TryAcquire(quote.PriorityNormal) {
			granted++
		}
	}

	// 10 windows of 120, burst allowance 12/120 = 10%.
	limit := 120 * 10 * 110 / 100
	if granted > limit {
		t.Errorf("granted %d acquisitions over 10 minutes, conservation bound is %d", granted, limit)
	}
	// Sanity: refill should have produced close to nominal throughput.
	if granted < 1100 {
		t.Errorf("granted %d acquisitions over 10 minutes, expected near 1200", granted)
	}
}

func TestPriorityWeightingUnderContention(t *testing.T) {
	l, mock := newTestLimiter(t, Config{RequestsPerMinute: 60})

	// Drain fully, then refill 0.7 tokens (1 token/s for 700ms).
	for l.TryAcquire(quote.PriorityNormal) {
	}
	mock.Add(700 * time.Millisecond)

	if l.TryAcquire(quote.PriorityLow) {
		t.Error("LOW granted with 0.7 tokens; costs 1.0")
	}
	if l.TryAcquire(quote.PriorityNormal) {
		t.Error("NORMAL granted with 0.7 tokens; costs 1.0")
	}
	if l.TryAcquire(quote.PriorityHigh) {
		t.Error("HIGH granted with 0.7 tokens; costs 0.8")
	}
	if !l.TryAcquire(quote.PriorityCritical) {
		t.Error("CRITICAL denied with 0.7 tokens; costs 0.5")
	}
}

func TestBackoffShrinksRefillRate(t *testing.T) {
	l, mock := newTestLimiter(t, Config{RequestsPerMinute: 60, BackoffFactor: 2})

	for l.TryAcquire(quote.PriorityNormal) {
	}

	l.OnRateLimitExceeded()
	if got := l.Snapshot().BackoffFactor; got != 2.0 {
		t.Fatalf("BackoffFactor = %v after one violation, want 2.0", got)
	}

	// At backoff 2, one second refills only half a token.
	mock.Add(time.Second)
	if l.TryAcquire(quote.PriorityNormal) {
		t.Error("NORMAL granted at halved refill rate after 1s")
	}
	mock.Add(time.Second)
	if !l.TryAcquire(quote.PriorityNormal) {
		t.Error("NORMAL denied after 2s at halved refill rate")
	}
}

func TestBackoffGrowthIsCapped(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 60, BackoffFactor: 2, MaxBackoffFactor: 8})

	for i := 0; i < 10; i++ {
		l.OnRateLimitExceeded()
	}
	if got := l.Snapshot().BackoffFactor; got != 8.0 {
		t.Errorf("BackoffFactor = %v after repeated violations, want cap 8.0", got)
	}
}

func TestBackoffDecaysAfterCleanWindows(t *testing.T) {
	l, mock := newTestLimiter(t, Config{
		RequestsPerMinute: 60,
		BackoffFactor:     2,
		Window:            time.Minute,
		CleanWindows:      2,
	})

	l.OnRateLimitExceeded()
	l.OnRateLimitExceeded()
	if got := l.Snapshot().BackoffFactor; got != 4.0 {
		t.Fatalf("BackoffFactor = %v, want 4.0", got)
	}

	// The violation window itself does not count as clean; two further
	// clean windows trigger one decay step.
	mock.Add(3 * time.Minute)
	if got := l.Snapshot().BackoffFactor; got != 2.0 {
		t.Errorf("BackoffFactor = %v after clean windows, want 2.0", got)
	}

	mock.Add(2 * time.Minute)
	if got := l.Snapshot().BackoffFactor; got != 1.0 {
		t.Errorf("BackoffFactor = %v after further clean windows, want full decay to 1.0", got)
	}

	// Decay never undershoots nominal.
	mock.Add(10 * time.Minute)
	if got := l.Snapshot().BackoffFactor; got != 1.0 {
		t.Errorf("BackoffFactor = %v, must stay at 1.0", got)
	}
}

func TestWaitHint(t *testing.T) {
	l, mock := newTestLimiter(t, Config{RequestsPerMinute: 60})

	if hint := l.WaitHint(); hint != 0 {
		t.Errorf("WaitHint() = %v on full bucket, want 0", hint)
	}

	for l.TryAcquire(quote.PriorityNormal) {
	}

	hint := l.WaitHint()
	if hint <= 0 || hint > time.Second+100*time.Millisecond {
		t.Errorf("WaitHint() = %v on drained bucket at 1 token/s, want ~1s", hint)
	}

	mock.Add(hint)
	if !l.TryAcquire(quote.PriorityNormal) {
		t.Error("acquisition denied after waiting the hinted duration")
	}
}

func TestSnapshotCounters(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 2})

	l.TryAcquire(quote.PriorityNormal)
	l.TryAcquire(quote.PriorityNormal)
	l.TryAcquire(quote.PriorityNormal) // denied
	l.OnRateLimitExceeded()

	snap := l.Snapshot()
	if snap.Granted != 2 {
		t.Errorf("Granted = %d, want 2", snap.Granted)
	}
	if snap.Denied != 1 {
		t.Errorf("Denied = %d, want 1", snap.Denied)
	}
	if snap.RateLimitHits != 1 {
		t.Errorf("RateLimitHits = %d, want 1", snap.RateLimitHits)
	}
	if !snap.Throttled() {
		t.Error("Throttled() = false after a violation")
	}
}
