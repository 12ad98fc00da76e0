package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Config holds the store configuration.
type Config struct {
	// MaxSize is the maximum number of entries held before LRU eviction.
	MaxSize int

	// Clock is the time source. Defaults to the wall clock; tests inject
	// a mock to exercise expiry without sleeping.
	Clock clock.Clock
}

// Store is a bounded key -> quote cache with per-entry TTL and LRU
// capacity eviction.
type Store struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *Entry]
	clock clock.Clock
}

// New creates a quote store.
func New(cfg Config) (*Store, error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("cache max size must be positive (got %d)", cfg.MaxSize)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	s := &Store{clock: cfg.Clock}

	inner, err := lru.NewWithEvict[string, *Entry](cfg.MaxSize, func(string, *Entry) {
		cacheEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	s.lru = inner

	return s, nil
}

// Get returns the cached quote for key if present and not expired.
// A hit refreshes the entry's recency; an expired entry is removed and
// reported as a miss.
func (s *Store) Get(key string) (quote.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Get(key)
	if !ok {
		cacheMisses.Inc()
		return quote.Quote{}, false
	}

	if entry.IsExpired(s.clock.Now()) {
		s.lru.Remove(key)
		cacheExpired.Inc()
		cacheMisses.Inc()
		cacheEntries.Set(float64(s.lru.Len()))
		return quote.Quote{}, false
	}

	cacheHits.Inc()
	return entry.Quote, true
}

// Put stores a quote under key with the given TTL, overwriting any existing
// entry. Non-positive TTLs are ignored: an already-stale value is never
// cached.
func (s *Store) Put(key string, q quote.Quote, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.lru.Add(key, &Entry{
		Quote:     q,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	cacheEntries.Set(float64(s.lru.Len()))
}

// Invalidate removes the entry for key, if any.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Remove(key)
	cacheEntries.Set(float64(s.lru.Len()))
}

// Len returns the current number of entries, including any that have
// expired but not yet been swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Sweep removes all expired entries and returns how many were dropped.
// Intended to be called periodically from a background loop; correctness
// does not depend on it because Get checks expiry itself.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for _, key := range s.lru.Keys() {
		entry, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		if entry.IsExpired(now) {
			s.lru.Remove(key)
			removed++
		}
	}

	if removed > 0 {
		cacheExpired.Add(float64(removed))
		cacheEntries.Set(float64(s.lru.Len()))
	}
	return removed
}
