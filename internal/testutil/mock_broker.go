// Package testutil provides test doubles for the acquisition core: a
// scriptable mock brokerage HTTP server and an in-process mock Transport.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// BrokerQuote is the wire form served by the mock broker.
type BrokerQuote struct {
	LastPrice    float64 `json:"last_price"`
	AveragePrice float64 `json:"average_price"`
	Volume       int64   `json:"volume"`
	OI           int64   `json:"oi"`
	NetChange    float64 `json:"net_change"`
	Timestamp    string  `json:"timestamp"`
}

// MockBroker is a configurable mock brokerage quote API for testing.
type MockBroker struct {
	server *httptest.Server

	mu       sync.Mutex
	quotes   map[string]BrokerQuote
	statuses []int // queued one-shot status overrides
	delay    time.Duration

	// Tracking
	RequestCount    int
	LastInstruments []string
	LastAuthHeader  string
}

// NewMockBroker creates a mock broker serving GET /quote.
func NewMockBroker() *MockBroker {
	mock := &MockBroker{
		quotes: make(map[string]BrokerQuote),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		instruments := r.URL.Query()["i"]
		mock.LastInstruments = instruments
		mock.LastAuthHeader = r.Header.Get("Authorization")
		delay := mock.delay

		var status int
		if len(mock.statuses) > 0 {
			status = mock.statuses[0]
			mock.statuses = mock.statuses[1:]
		}

		data := make(map[string]BrokerQuote)
		for _, inst := range instruments {
			if q, ok := mock.quotes[inst]; ok {
				data[inst] = q
			}
		}
		mock.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"status": "error", "message": "scripted failure"}`))
			return
		}

		if !strings.HasPrefix(r.URL.Path, "/quote") {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   data,
		})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBroker) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBroker) Close() {
	m.server.Close()
}

// SetQuote registers a quote for an instrument ("EXCHANGE:SYMBOL").
func (m *MockBroker) SetQuote(instrument string, q BrokerQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[instrument] = q
}

// QueueStatus enqueues a one-shot HTTP status returned instead of quote
// data; queued statuses are consumed in order.
func (m *MockBroker) QueueStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

// SetDelay makes every response wait before being written.
func (m *MockBroker) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetRequestCount returns how many requests the broker served.
func (m *MockBroker) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// HealthyQuote returns a plausible quote payload for tests.
func HealthyQuote(lastPrice float64) BrokerQuote {
	return BrokerQuote{
		LastPrice:    lastPrice,
		AveragePrice: lastPrice * 0.997,
		Volume:       125000,
		OI:           48200,
		NetChange:    12.35,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}
