// Package chain provides parallel fetching of complete option chains through
// the acquisition core.
//
// A chain fetch expands a spot price into the strike ladder around the
// at-the-money strike (both calls and puts), then fetches every leg through
// a worker pool. The dispatcher underneath still batches and rate-limits the
// physical calls; the pool only bounds how many legs wait on it at once.
//
// Example usage:
//
//	fetcher := chain.NewFetcher(dispatcher, chain.DefaultConfig())
//	legs, err := fetcher.FetchChain(ctx, "NIFTY", expiry, spot.LastPrice, quote.PriorityNormal)
//
// The chain fetcher:
//   - Rounds the spot to the ATM strike for the index
//   - Builds CE and PE legs for the configured strikes each side
//   - Fetches legs through a bounded worker pool
//   - Handles errors gracefully (returns partial chains, per-leg errors)
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Config holds chain fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of legs in flight at once.
	MaxConcurrency int

	// Timeout per leg fetch.
	Timeout time.Duration

	// StrikesEachSide is how many strikes above and below ATM to fetch.
	StrikesEachSide int
}

// DefaultConfig returns safe defaults: 10 workers, 15s per leg, 5 strikes
// each side (22 legs per chain).
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  10,
		Timeout:         15 * time.Second,
		StrikesEachSide: 5,
	}
}

// QuoteFetcher is the capability the chain fetcher pulls legs through. The
// dispatcher implements it.
type QuoteFetcher interface {
	Fetch(ctx context.Context, key quote.Key, priority quote.Priority) (quote.Quote, error)
}

// Leg is one option in a fetched chain. Exactly one of Quote or Err is
// meaningful.
type Leg struct {
	Key    quote.Key
	Strike int
	Type   quote.OptionType
	Quote  quote.Quote
	Err    error
}

// Fetcher fetches option chains in parallel.
type Fetcher struct {
	fetcher QuoteFetcher
	config  Config
}

// NewFetcher creates a chain fetcher.
func NewFetcher(fetcher QuoteFetcher, config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.StrikesEachSide <= 0 {
		config.StrikesEachSide = 5
	}

	return &Fetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchChain fetches the CE and PE legs around the ATM strike for spot.
// Legs that fail carry their error; the chain as a whole errors only when
// every leg failed.
func (f *Fetcher) FetchChain(ctx context.Context, index string, expiry time.Time, spot float64, priority quote.Priority) ([]Leg, error) {
	start := time.Now()

	atm := quote.ATMStrike(index, spot)
	interval := quote.StrikeInterval(index)

	legs := make([]Leg, 0, (2*f.config.StrikesEachSide+1)*2)
	for offset := -f.config.StrikesEachSide; offset <= f.config.StrikesEachSide; offset++ {
		strike := atm + offset*interval
		for _, ot := range []quote.OptionType{quote.Call, quote.Put} {
			legs = append(legs, Leg{
				Key: quote.Key{
					Exchange:      "NFO",
					Tradingsymbol: quote.OptionSymbol(index, expiry, strike, ot),
				},
				Strike: strike,
				Type:   ot,
			})
		}
	}

	log.Info().
		Str("index", index).
		Int("atm_strike", atm).
		Int("legs", len(legs)).
		Msg("Starting parallel chain fetch")

	legQueue := make(chan int, len(legs))
	for i := range legs {
		legQueue <- i
	}
	close(legQueue)

	var wg sync.WaitGroup
	for w := 0; w < f.config.MaxConcurrency; w++ {
		wg.Add(1)
		go f.worker(ctx, legs, legQueue, priority, &wg, w)
	}
	wg.Wait()

	fetched := 0
	for _, l := range legs {
		if l.Err == nil {
			fetched++
		}
	}

	log.Info().
		Str("index", index).
		Int("fetched", fetched).
		Int("legs", len(legs)).
		Dur("duration", time.Since(start)).
		Msg("Chain fetch complete")

	if fetched == 0 {
		return legs, fmt.Errorf("chain fetch %s: all %d legs failed: %w", index, len(legs), firstError(legs))
	}
	return legs, nil
}

// worker pulls leg indices from the queue and fetches them one at a time.
// Each worker writes only the legs it drew, so no mutex is needed.
func (f *Fetcher) worker(ctx context.Context, legs []Leg, legQueue <-chan int, priority quote.Priority, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range legQueue {
		// After cancellation, drain the queue without fetching so every
		// leg still ends up resolved.
		select {
		case <-ctx.Done():
			legs[i].Err = ctx.Err()
			continue
		default:
		}

		legCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
		q, err := f.fetcher.Fetch(legCtx, legs[i].Key, priority)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("key", legs[i].Key.String()).
				Msg("Chain leg fetch failed")
			legs[i].Err = err
			continue
		}

		legs[i].Quote = q
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("legs_processed", processed).
			Msg("Chain worker completed")
	}
}

// firstError returns the first leg error for wrapping into the chain error.
func firstError(legs []Leg) error {
	for _, l := range legs {
		if l.Err != nil {
			return l.Err
		}
	}
	return nil
}
