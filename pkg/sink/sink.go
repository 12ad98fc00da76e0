// Package sink persists acquired quotes outside the in-memory cache. Sinks
// are best-effort: a write failure is logged and counted but never fails
// the quote fetch that produced it.
package sink

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// Sink receives every successfully acquired quote.
type Sink interface {
	// Write persists one quote observation.
	Write(ctx context.Context, key string, q quote.Quote, observedAt time.Time) error

	// Close releases the sink's resources.
	Close() error
}

// MultiSink fans one observation out to several sinks. Failures in one sink
// do not stop delivery to the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write delivers the observation to every sink, returning the first error
// after all deliveries were attempted.
func (m *MultiSink) Write(ctx context.Context, key string, q quote.Quote, observedAt time.Time) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Write(ctx, key, q, observedAt); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Sink write failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close closes every sink, returning the first error.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
