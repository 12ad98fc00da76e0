// Package cache provides the bounded in-process quote cache used by the
// dispatcher to avoid repeated upstream calls for the same instrument.
//
// The store combines two eviction mechanisms:
//
//  1. Per-entry TTL: every entry carries its own expiry time. Get never
//     returns an expired entry; expired entries are removed lazily on read
//     and in bulk by Sweep.
//  2. Capacity bound: when the store exceeds its configured maximum entry
//     count, the least-recently-accessed entries are evicted first.
//
// The recency and capacity bookkeeping is delegated to
// hashicorp/golang-lru; this package layers per-entry expiry, a clock seam
// for tests, and Prometheus metrics on top.
//
// Usage:
//
//	store, err := cache.New(cache.Config{MaxSize: 1000})
//	if err != nil {
//		return err
//	}
//
//	store.Put(key.String(), q, 30*time.Second)
//
//	if q, ok := store.Get(key.String()); ok {
//		// fresh hit, no upstream call needed
//	}
//
// All methods are safe for concurrent use.
package cache
