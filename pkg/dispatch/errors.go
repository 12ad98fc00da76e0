package dispatch

import "errors"

// Sentinel errors delivered to request owners. Wrap with %w so callers
// can match with errors.Is.
var (
	// ErrCircuitOpen: the breaker refused the batch; no upstream call was
	// attempted.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrTimeout: the request missed its deadline before a usable quote
	// arrived.
	ErrTimeout = errors.New("quote request timed out")

	// ErrRetryExhausted: the transport kept failing past the retry budget.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrQuoteUnavailable: the upstream answered but its response carried
	// no quote for the requested key.
	ErrQuoteUnavailable = errors.New("quote unavailable upstream")

	// ErrShuttingDown: the dispatcher is stopping and will accept or
	// serve no further requests.
	ErrShuttingDown = errors.New("dispatcher shutting down")
)
