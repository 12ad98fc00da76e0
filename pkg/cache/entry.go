package cache

import (
	"time"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Entry is a cached quote together with its freshness window.
type Entry struct {
	// Quote is the cached value.
	Quote quote.Quote

	// StoredAt is when the entry was written.
	StoredAt time.Time

	// ExpiresAt is when the entry becomes stale. An entry whose ExpiresAt
	// is not after the current time is never returned by the store.
	ExpiresAt time.Time
}

// IsExpired reports whether the entry is stale at the given instant.
func (e *Entry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// TTL returns the remaining time until expiry at the given instant.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
