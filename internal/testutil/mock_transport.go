package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Call records one Execute invocation on the MockTransport.
type Call struct {
	Keys []string
	At   time.Time
}

// scripted is one queued Execute outcome.
type scripted struct {
	results map[string]quote.Quote
	err     error
}

// MockTransport is an in-process Transport double. Outcomes are consumed
// from a queue in order; when the queue is empty the default results map
// is served.
type MockTransport struct {
	mu       sync.Mutex
	calls    []Call
	queue    []scripted
	defaults map[string]quote.Quote
	delay    time.Duration
}

// NewMockTransport creates a transport double with no scripted outcomes.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		defaults: make(map[string]quote.Quote),
	}
}

// SetDefault registers the quote served for a key when no scripted
// outcome is queued.
func (m *MockTransport) SetDefault(key string, q quote.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[key] = q
}

// QueueError enqueues a one-shot Execute failure.
func (m *MockTransport) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{err: err})
}

// QueueResults enqueues a one-shot Execute success with exactly the given
// result map.
func (m *MockTransport) QueueResults(results map[string]quote.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{results: results})
}

// SetDelay makes every Execute block for d (or until ctx is done).
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns a copy of all recorded Execute invocations.
func (m *MockTransport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Execute was invoked.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Execute implements upstream.Transport.
func (m *MockTransport) Execute(ctx context.Context, keys []string) (map[string]quote.Quote, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Keys: append([]string(nil), keys...), At: time.Now()})
	var next *scripted
	if len(m.queue) > 0 {
		next = &m.queue[0]
		m.queue = m.queue[1:]
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if next != nil {
		if next.err != nil {
			return nil, next.err
		}
		return next.results, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	results := make(map[string]quote.Quote, len(keys))
	for _, k := range keys {
		if q, ok := m.defaults[k]; ok {
			results[k] = q
		}
	}
	return results, nil
}
