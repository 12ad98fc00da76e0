// Package upstream defines the transport boundary to the brokerage quote
// API: the Transport capability the dispatcher executes batches against,
// and the error taxonomy the dispatcher keys its recovery decisions on.
package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	// KindRateLimited: the upstream rejected the call for exceeding its
	// rate limit. The dispatcher triggers limiter backoff on this kind.
	KindRateLimited ErrorKind = "rate_limited"

	// KindNetwork: the call never produced an HTTP response.
	KindNetwork ErrorKind = "network"

	// KindUpstream4xx: client-side errors. Not retried; retrying wastes
	// rate-limit budget.
	KindUpstream4xx ErrorKind = "upstream_4xx"

	// KindUpstream5xx: server-side errors. Retried with backoff.
	KindUpstream5xx ErrorKind = "upstream_5xx"
)

// Error is a classified transport failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retriable reports whether the dispatcher should retry this kind of
// failure. 4xx responses are final; everything else may be transient.
func (e *Error) Retriable() bool {
	return e.Kind != KindUpstream4xx
}

// IsRateLimited reports whether err is a rate-limit-exceeded transport
// failure.
func IsRateLimited(err error) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Kind == KindRateLimited
}

// Transport executes one physical quote call for a deduplicated key set.
// Implementations perform no caching and no retrying; both belong to the
// dispatcher. The result map is keyed by the same key strings passed in;
// keys unknown to the upstream are simply absent from the map.
type Transport interface {
	Execute(ctx context.Context, keys []string) (map[string]quote.Quote, error)
}
