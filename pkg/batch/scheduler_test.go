package batch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

func newTestScheduler(t *testing.T, maxSize int, timeout time.Duration) (*Scheduler, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	s, err := NewScheduler(Config{MaxBatchSize: maxSize, BatchTimeout: timeout, Clock: mock})
	if err != nil {
		t.Fatalf("NewScheduler() failed: %v", err)
	}
	return s, mock
}

func newTestRequest(mock *clock.Mock, key string, priority quote.Priority) *Request {
	return NewRequest(key, priority, mock.Now(), mock.Now().Add(time.Minute))
}

func TestNewSchedulerRejectsInvalidConfig(t *testing.T) {
	if _, err := NewScheduler(Config{MaxBatchSize: 0, BatchTimeout: time.Second}); err == nil {
		t.Error("NewScheduler() accepted zero batch size")
	}
	if _, err := NewScheduler(Config{MaxBatchSize: 10, BatchTimeout: 0}); err == nil {
		t.Error("NewScheduler() accepted zero batch timeout")
	}
}

func TestEagerReleaseAtMaxSize(t *testing.T) {
	s, mock := newTestScheduler(t, 3, time.Second)

	s.Enqueue(newTestRequest(mock, "k1", quote.PriorityNormal))
	s.Enqueue(newTestRequest(mock, "k2", quote.PriorityNormal))
	if b := s.PollReady(); b != nil {
		t.Fatal("batch released below max size before timeout")
	}

	s.Enqueue(newTestRequest(mock, "k3", quote.PriorityNormal))
	b := s.PollReady()
	if b == nil {
		t.Fatal("batch not released at max size")
	}
	if b.Size() != 3 {
		t.Errorf("Size() = %d, want 3", b.Size())
	}
	if !b.Released() {
		t.Error("polled batch not marked released")
	}
}

func TestTimedRelease(t *testing.T) {
	s, mock := newTestScheduler(t, 100, 200*time.Millisecond)

	s.Enqueue(newTestRequest(mock, "k1", quote.PriorityNormal))

	mock.Add(199 * time.Millisecond)
	if b := s.PollReady(); b != nil {
		t.Fatal("batch released before timeout")
	}

	mock.Add(1 * time.Millisecond)
	b := s.PollReady()
	if b == nil {
		t.Fatal("batch not released after timeout")
	}
	if b.Size() != 1 {
		t.Errorf("Size() = %d, want 1", b.Size())
	}
}

func TestKeyDeduplication(t *testing.T) {
	s, mock := newTestScheduler(t, 10, time.Second)

	r1 := newTestRequest(mock, "same", quote.PriorityNormal)
	r2 := newTestRequest(mock, "same", quote.PriorityNormal)
	r3 := newTestRequest(mock, "other", quote.PriorityNormal)
	s.Enqueue(r1)
	s.Enqueue(r2)
	s.Enqueue(r3)

	mock.Add(time.Second)
	b := s.PollReady()
	if b == nil {
		t.Fatal("expected a batch")
	}
	if b.Size() != 2 {
		t.Errorf("Size() = %d distinct keys, want 2", b.Size())
	}
	if got := len(b.Members()); got != 3 {
		t.Errorf("Members() = %d, want 3", got)
	}
}

func TestDedupCountsTowardSizeOnce(t *testing.T) {
	s, mock := newTestScheduler(t, 2, time.Hour)

	s.Enqueue(newTestRequest(mock, "same", quote.PriorityNormal))
	s.Enqueue(newTestRequest(mock, "same", quote.PriorityNormal))
	if b := s.PollReady(); b != nil {
		t.Fatal("duplicate key must not trigger eager release")
	}

	s.Enqueue(newTestRequest(mock, "other", quote.PriorityNormal))
	if b := s.PollReady(); b == nil {
		t.Fatal("second distinct key should seal the batch")
	}
}

func TestReleasedBatchAcceptsNoFurtherKeys(t *testing.T) {
	s, mock := newTestScheduler(t, 2, time.Second)

	s.Enqueue(newTestRequest(mock, "k1", quote.PriorityNormal))
	s.Enqueue(newTestRequest(mock, "k2", quote.PriorityNormal))
	first := s.PollReady()
	if first == nil {
		t.Fatal("expected sealed batch")
	}

	// A key arriving after release starts a new batch, even if it
	// duplicates a key of the released batch.
	s.Enqueue(newTestRequest(mock, "k1", quote.PriorityNormal))

	if first.Size() != 2 {
		t.Errorf("released batch grew to %d keys", first.Size())
	}

	mock.Add(time.Second)
	second := s.PollReady()
	if second == nil {
		t.Fatal("expected a second batch")
	}
	if second.ID == first.ID {
		t.Error("request after release landed in the released batch")
	}
	if second.Size() != 1 {
		t.Errorf("second batch Size() = %d, want 1", second.Size())
	}
}

func TestFIFOOrderWithinBatch(t *testing.T) {
	s, mock := newTestScheduler(t, 10, time.Second)

	for i := 0; i < 5; i++ {
		s.Enqueue(newTestRequest(mock, fmt.Sprintf("k%d", i), quote.PriorityNormal))
	}

	mock.Add(time.Second)
	b := s.PollReady()
	if b == nil {
		t.Fatal("expected a batch")
	}
	for i, key := range b.Keys() {
		if want := fmt.Sprintf("k%d", i); key != want {
			t.Errorf("Keys()[%d] = %q, want %q (FIFO order)", i, key, want)
		}
	}
}

func TestMaxPriority(t *testing.T) {
	s, mock := newTestScheduler(t, 10, time.Second)

	s.Enqueue(newTestRequest(mock, "k1", quote.PriorityLow))
	s.Enqueue(newTestRequest(mock, "k2", quote.PriorityHigh))
	s.Enqueue(newTestRequest(mock, "k3", quote.PriorityNormal))

	mock.Add(time.Second)
	b := s.PollReady()
	if b == nil {
		t.Fatal("expected a batch")
	}
	if got := b.MaxPriority(); got != quote.PriorityHigh {
		t.Errorf("MaxPriority() = %v, want high", got)
	}
}

func TestPendingSplitsExpiredAndResolved(t *testing.T) {
	s, mock := newTestScheduler(t, 10, time.Second)

	fresh := NewRequest("fresh", quote.PriorityNormal, mock.Now(), mock.Now().Add(time.Minute))
	stale := NewRequest("stale", quote.PriorityNormal, mock.Now(), mock.Now().Add(time.Millisecond))
	gone := NewRequest("gone", quote.PriorityNormal, mock.Now(), mock.Now().Add(time.Minute))
	gone.Deliver(quote.Quote{}, errors.New("caller cancelled"))

	s.Enqueue(fresh)
	s.Enqueue(stale)
	s.Enqueue(gone)

	mock.Add(time.Second)
	b := s.PollReady()
	if b == nil {
		t.Fatal("expected a batch")
	}

	active, expired := b.Pending(mock.Now())
	if len(active) != 1 || active[0].Key != "fresh" {
		t.Errorf("active = %d members, want exactly the fresh request", len(active))
	}
	if len(expired) != 1 || expired[0].Key != "stale" {
		t.Errorf("expired = %d members, want exactly the stale request", len(expired))
	}
}

func TestDrain(t *testing.T) {
	s, mock := newTestScheduler(t, 2, time.Hour)

	s.Enqueue(newTestRequest(mock, "k1", quote.PriorityNormal))
	s.Enqueue(newTestRequest(mock, "k2", quote.PriorityNormal)) // seals by size
	s.Enqueue(newTestRequest(mock, "k3", quote.PriorityNormal)) // stays open

	drained := s.Drain()
	if len(drained) != 2 {
		t.Fatalf("Drain() = %d batches, want 2", len(drained))
	}
	if s.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d after drain, want 0", s.PendingRequests())
	}
	if b := s.PollReady(); b != nil {
		t.Error("PollReady() returned a batch after drain")
	}
}

func TestRequestDeliverExactlyOnce(t *testing.T) {
	mock := clock.NewMock()
	req := newTestRequest(mock, "k", quote.PriorityNormal)

	req.Deliver(quote.Quote{LastPrice: 1}, nil)
	req.Deliver(quote.Quote{LastPrice: 2}, nil) // dropped

	res := <-req.Done()
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Quote.LastPrice != 1 {
		t.Errorf("LastPrice = %v, want first delivery to win", res.Quote.LastPrice)
	}
	if !req.Resolved() {
		t.Error("Resolved() = false after delivery")
	}

	// Channel is closed after the single result.
	if _, ok := <-req.Done(); ok {
		t.Error("Done() yielded a second result")
	}
}
