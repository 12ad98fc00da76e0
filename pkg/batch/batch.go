package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Batch is a group of requests released to upstream as one physical call.
// Keys are deduplicated: every member request sharing a key receives the
// same result. Once released a batch accepts no further members.
type Batch struct {
	// ID uniquely identifies the batch for logging.
	ID string

	// OpenedAt is when the first request was enrolled.
	OpenedAt time.Time

	keys     []string
	keySet   map[string]struct{}
	members  []*Request
	released bool
}

func newBatch(openedAt time.Time) *Batch {
	return &Batch{
		ID:       uuid.NewString(),
		OpenedAt: openedAt,
		keySet:   make(map[string]struct{}),
	}
}

// add enrolls a request, deduplicating its key. Returns true if the key was
// new to the batch. Must not be called after release; the scheduler
// guarantees that.
func (b *Batch) add(req *Request) bool {
	b.members = append(b.members, req)
	if _, ok := b.keySet[req.Key]; ok {
		batchDedupedKeys.Inc()
		return false
	}
	b.keySet[req.Key] = struct{}{}
	b.keys = append(b.keys, req.Key)
	return true
}

// Keys returns the deduplicated keys in insertion order.
func (b *Batch) Keys() []string {
	return b.keys
}

// Members returns all enrolled requests in arrival order.
func (b *Batch) Members() []*Request {
	return b.members
}

// Size returns the number of distinct keys.
func (b *Batch) Size() int {
	return len(b.keys)
}

// Released reports whether the batch has been sealed.
func (b *Batch) Released() bool {
	return b.released
}

// MaxPriority returns the highest priority among member requests. The
// dispatcher acquires rate-limit tokens at this priority for the whole
// batch.
func (b *Batch) MaxPriority() quote.Priority {
	max := quote.PriorityLow
	for _, req := range b.members {
		max = quote.MaxPriority(max, req.Priority)
	}
	return max
}

// Pending returns the members that are neither resolved nor expired, and
// separately the members whose deadline elapsed. Resolved members (e.g.
// caller cancelled) are dropped.
func (b *Batch) Pending(now time.Time) (active, expired []*Request) {
	for _, req := range b.members {
		switch {
		case req.Resolved():
			// Caller already gone; nothing to deliver.
		case req.Expired(now):
			expired = append(expired, req)
		default:
			active = append(active, req)
		}
	}
	return active, expired
}
