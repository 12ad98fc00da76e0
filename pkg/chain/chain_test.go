package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// stubFetcher serves quotes by key and records every fetch.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	failAll error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{fail: make(map[string]error)}
}

func (s *stubFetcher) Fetch(ctx context.Context, key quote.Key, _ quote.Priority) (quote.Quote, error) {
	s.mu.Lock()
	s.calls = append(s.calls, key.String())
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return quote.Quote{}, err
	}
	if s.failAll != nil {
		return quote.Quote{}, s.failAll
	}
	if err, ok := s.fail[key.String()]; ok {
		return quote.Quote{}, err
	}
	return quote.Quote{Symbol: key.Instrument(), LastPrice: 100}, nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var testExpiry = time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)

func TestFetchChainBuildsFullLadder(t *testing.T) {
	stub := newStubFetcher()
	f := NewFetcher(stub, Config{MaxConcurrency: 4, Timeout: time.Second, StrikesEachSide: 2})

	legs, err := f.FetchChain(context.Background(), "NIFTY", testExpiry, 24963.0, quote.PriorityNormal)
	if err != nil {
		t.Fatalf("FetchChain() failed: %v", err)
	}

	// 2 strikes each side + ATM = 5 strikes, CE and PE each.
	if len(legs) != 10 {
		t.Fatalf("legs = %d, want 10", len(legs))
	}

	// Spot 24963 with interval 50 rounds to ATM 24950.
	strikes := map[int]int{}
	for _, l := range legs {
		strikes[l.Strike]++
		if l.Err != nil {
			t.Errorf("leg %s failed: %v", l.Key.String(), l.Err)
		}
		if l.Quote.LastPrice != 100 {
			t.Errorf("leg %s LastPrice = %v, want 100", l.Key.String(), l.Quote.LastPrice)
		}
	}
	for _, want := range []int{24850, 24900, 24950, 25000, 25050} {
		if strikes[want] != 2 {
			t.Errorf("strike %d has %d legs, want CE+PE", want, strikes[want])
		}
	}

	if got := stub.callCount(); got != 10 {
		t.Errorf("fetches = %d, want 10", got)
	}
}

func TestFetchChainSymbols(t *testing.T) {
	stub := newStubFetcher()
	f := NewFetcher(stub, Config{MaxConcurrency: 2, Timeout: time.Second, StrikesEachSide: 1})

	legs, err := f.FetchChain(context.Background(), "NIFTY", testExpiry, 24950, quote.PriorityNormal)
	if err != nil {
		t.Fatalf("FetchChain() failed: %v", err)
	}

	found := false
	for _, l := range legs {
		if l.Strike == 24950 && l.Type == quote.Call {
			found = true
			if l.Key.Tradingsymbol != "NIFTY26090924950CE" {
				t.Errorf("ATM call symbol = %q, want NIFTY26090924950CE", l.Key.Tradingsymbol)
			}
			if l.Key.Exchange != "NFO" {
				t.Errorf("Exchange = %q, want NFO", l.Key.Exchange)
			}
		}
	}
	if !found {
		t.Error("chain missing the ATM call leg")
	}
}

func TestFetchChainPartialFailure(t *testing.T) {
	stub := newStubFetcher()
	bad := quote.Key{Exchange: "NFO", Tradingsymbol: quote.OptionSymbol("NIFTY", testExpiry, 24950, quote.Put)}
	stub.fail[bad.String()] = errors.New("leg unavailable")

	f := NewFetcher(stub, Config{MaxConcurrency: 4, Timeout: time.Second, StrikesEachSide: 1})
	legs, err := f.FetchChain(context.Background(), "NIFTY", testExpiry, 24950, quote.PriorityNormal)
	if err != nil {
		t.Fatalf("FetchChain() with one bad leg failed: %v", err)
	}

	failed := 0
	for _, l := range legs {
		if l.Err != nil {
			failed++
			if !strings.Contains(l.Err.Error(), "leg unavailable") {
				t.Errorf("leg error = %v", l.Err)
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed legs = %d, want exactly the bad one", failed)
	}
}

func TestFetchChainAllLegsFailed(t *testing.T) {
	stub := newStubFetcher()
	stub.failAll = errors.New("upstream down")

	f := NewFetcher(stub, Config{MaxConcurrency: 4, Timeout: time.Second, StrikesEachSide: 1})
	legs, err := f.FetchChain(context.Background(), "NIFTY", testExpiry, 24950, quote.PriorityNormal)
	if err == nil {
		t.Fatal("FetchChain() succeeded with every leg failing")
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("chain error = %v, want wrapped leg error", err)
	}
	for _, l := range legs {
		if l.Err == nil {
			t.Errorf("leg %s has no error", l.Key.String())
		}
	}
}

func TestFetchChainCancelledContext(t *testing.T) {
	stub := newStubFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(stub, Config{MaxConcurrency: 2, Timeout: time.Second, StrikesEachSide: 1})
	legs, err := f.FetchChain(ctx, "NIFTY", testExpiry, 24950, quote.PriorityNormal)
	if err == nil {
		t.Fatal("FetchChain() succeeded with a cancelled context")
	}
	for _, l := range legs {
		if l.Err == nil {
			t.Errorf("leg %s resolved without error under cancelled context", l.Key.String())
		}
	}
}

func TestFetchChainBankNiftyInterval(t *testing.T) {
	stub := newStubFetcher()
	f := NewFetcher(stub, Config{MaxConcurrency: 4, Timeout: time.Second, StrikesEachSide: 1})

	legs, err := f.FetchChain(context.Background(), "BANKNIFTY", testExpiry, 52430, quote.PriorityNormal)
	if err != nil {
		t.Fatalf("FetchChain() failed: %v", err)
	}

	// BANKNIFTY strikes at 100-point spacing; 52430 rounds to 52400.
	strikes := map[int]bool{}
	for _, l := range legs {
		strikes[l.Strike] = true
	}
	for _, want := range []int{52300, 52400, 52500} {
		if !strikes[want] {
			t.Errorf("chain missing strike %d", want)
		}
	}
}
