// Package batch groups pending quote requests into bounded batches that the
// dispatcher releases as single upstream calls. A batch is released when it
// reaches the configured size or when its timeout elapses, whichever comes
// first; requests for the same key within one batch collapse into a single
// physical fetch.
package batch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Result is the terminal outcome of a request: exactly one of Quote or Err.
type Result struct {
	Quote quote.Quote
	Err   error
}

// Request is one logical quote fetch awaiting fulfillment. It is created by
// the dispatcher on a cache miss and resolved exactly once, either with a
// quote or with an error.
type Request struct {
	// ID uniquely identifies the request for logging.
	ID string

	// Key is the logical fetch key (quote.Key.String()).
	Key string

	// Priority decides rate-limit weighting for the batch carrying this
	// request.
	Priority quote.Priority

	// CreatedAt is when the request was accepted.
	CreatedAt time.Time

	// Deadline is when the request must be failed if not yet fulfilled.
	Deadline time.Time

	once     sync.Once
	resolved atomic.Bool
	done     chan Result
}

// NewRequest creates a pending request.
func NewRequest(key string, priority quote.Priority, createdAt, deadline time.Time) *Request {
	return &Request{
		ID:        uuid.NewString(),
		Key:       key,
		Priority:  priority,
		CreatedAt: createdAt,
		Deadline:  deadline,
		done:      make(chan Result, 1),
	}
}

// Deliver resolves the request. Only the first call has any effect; later
// deliveries (e.g. a batch result arriving after the caller timed out) are
// dropped silently.
func (r *Request) Deliver(q quote.Quote, err error) {
	r.once.Do(func() {
		r.resolved.Store(true)
		r.done <- Result{Quote: q, Err: err}
		close(r.done)
	})
}

// Done returns the channel carrying the request's single result.
func (r *Request) Done() <-chan Result {
	return r.done
}

// Resolved reports whether the request has already been delivered.
func (r *Request) Resolved() bool {
	return r.resolved.Load()
}

// Expired reports whether the deadline elapsed at the given instant.
func (r *Request) Expired(now time.Time) bool {
	return !r.Deadline.After(now)
}
