package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Config holds the scheduler configuration.
type Config struct {
	// MaxBatchSize is the distinct-key count that triggers eager release.
	MaxBatchSize int

	// BatchTimeout is the longest a batch stays open waiting to fill; it
	// bounds the extra latency batching can add to any request.
	BatchTimeout time.Duration

	// Clock is the time source; tests inject a mock.
	Clock clock.Clock
}

// Scheduler coalesces requests into batches. One batch is open at a time;
// it seals when it reaches MaxBatchSize distinct keys or when BatchTimeout
// elapses after it opened. A key requested again after its batch sealed
// starts a new batch; there is no coalescing against in-flight batches.
type Scheduler struct {
	mu sync.Mutex

	open  *Batch
	ready []*Batch

	maxSize int
	timeout time.Duration
	clock   clock.Clock
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive (got %d)", cfg.MaxBatchSize)
	}
	if cfg.BatchTimeout <= 0 {
		return nil, fmt.Errorf("batch timeout must be positive (got %v)", cfg.BatchTimeout)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Scheduler{
		maxSize: cfg.MaxBatchSize,
		timeout: cfg.BatchTimeout,
		clock:   cfg.Clock,
	}, nil
}

// Enqueue enrolls a request into the currently open batch, opening one if
// needed. Reaching MaxBatchSize distinct keys seals the batch immediately.
func (s *Scheduler) Enqueue(req *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		s.open = newBatch(s.clock.Now())
	}
	s.open.add(req)

	if s.open.Size() >= s.maxSize {
		s.seal("size")
	}
}

// PollReady returns the next sealed batch, sealing the open batch first if
// its timeout elapsed. Returns nil when nothing is ready.
func (s *Scheduler) PollReady() *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil && s.clock.Now().Sub(s.open.OpenedAt) >= s.timeout {
		s.seal("timeout")
	}

	if len(s.ready) == 0 {
		return nil
	}
	b := s.ready[0]
	s.ready = s.ready[1:]
	return b
}

// PendingRequests returns how many requests are enqueued but not yet
// handed to the dispatcher.
func (s *Scheduler) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	if s.open != nil {
		n += len(s.open.Members())
	}
	for _, b := range s.ready {
		n += len(b.Members())
	}
	return n
}

// Drain seals the open batch and returns every batch not yet polled. Used
// during shutdown so that no request is left undelivered.
func (s *Scheduler) Drain() []*Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil {
		s.seal("drain")
	}
	drained := s.ready
	s.ready = nil
	return drained
}

// seal closes the open batch and queues it for release. Callers hold s.mu.
func (s *Scheduler) seal(trigger string) {
	b := s.open
	b.released = true
	s.open = nil
	s.ready = append(s.ready, b)

	batchesReleased.WithLabelValues(trigger).Inc()
	batchSize.Observe(float64(b.Size()))
}
