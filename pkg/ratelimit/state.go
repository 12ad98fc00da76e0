package ratelimit

// State is a point-in-time snapshot of the limiter, exposed through the
// collector's health endpoint.
type State struct {
	// Capacity is the nominal token capacity (requests per window).
	Capacity float64 `json:"capacity"`

	// BurstCapacity is the extra headroom above nominal capacity.
	BurstCapacity float64 `json:"burst_capacity"`

	// Tokens is the currently available token count.
	Tokens float64 `json:"tokens"`

	// BackoffFactor is the current penalty divisor on the refill rate.
	// 1.0 means nominal; anything above means upstream recently pushed back.
	BackoffFactor float64 `json:"backoff_factor"`

	// Granted is the total number of granted acquisitions.
	Granted uint64 `json:"granted"`

	// Denied is the total number of denied acquisitions.
	Denied uint64 `json:"denied"`

	// RateLimitHits is how many explicit rate-limit-exceeded responses the
	// upstream has returned.
	RateLimitHits uint64 `json:"rate_limit_hits"`
}

// Throttled reports whether the limiter is currently operating below its
// nominal refill rate due to upstream pushback.
func (s State) Throttled() bool {
	return s.BackoffFactor > 1.0
}

// Utilization returns the fraction of bucket capacity currently consumed,
// in [0, 1].
func (s State) Utilization() float64 {
	max := s.Capacity + s.BurstCapacity
	if max <= 0 {
		return 0
	}
	used := max - s.Tokens
	if used < 0 {
		used = 0
	}
	return used / max
}
