// Package dispatch orchestrates the quote acquisition path: cache lookup,
// batching, circuit breaking, rate limiting, retries, and result delivery.
// The dispatcher is the only component that calls the upstream transport;
// everything else feeds it requests or observes its outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/channelqueue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/batch"
	"github.com/marketpulse/optionsfeed/pkg/breaker"
	"github.com/marketpulse/optionsfeed/pkg/cache"
	"github.com/marketpulse/optionsfeed/pkg/quote"
	"github.com/marketpulse/optionsfeed/pkg/ratelimit"
	"github.com/marketpulse/optionsfeed/pkg/sink"
	"github.com/marketpulse/optionsfeed/pkg/upstream"
)

// Config holds the dispatcher configuration.
type Config struct {
	// Cache, Limiter, Breaker and Transport are required collaborators.
	Cache     *cache.Store
	Limiter   *ratelimit.Limiter
	Breaker   *breaker.Breaker
	Transport upstream.Transport

	// Sink receives every successfully acquired quote. Optional; sink
	// failures never fail a fetch.
	Sink sink.Sink

	// MaxBatchSize and BatchTimeout shape batch release. Defaults: 50
	// keys, 100ms.
	MaxBatchSize int
	BatchTimeout time.Duration

	// RequestTimeout is the default per-fetch deadline. Defaults to 30s.
	RequestTimeout time.Duration

	// CacheTTL is how long fetched quotes stay servable from cache.
	// Defaults to 3s; option quotes go stale fast.
	CacheTTL time.Duration

	// MaxConcurrentBatches bounds simultaneous upstream calls. Defaults
	// to 2.
	MaxConcurrentBatches int

	// PollInterval is how often the run loop checks for timed-out open
	// batches. Defaults to 25ms.
	PollInterval time.Duration

	// Retry bounds transport retries per batch.
	Retry RetryPolicy

	// Clock is the time source; tests inject a mock.
	Clock clock.Clock
}

func (c *Config) applyDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 50
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 100 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3 * time.Second
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 25 * time.Millisecond
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Dispatcher coordinates the acquisition pipeline. Create with New, start
// the run loop with Run, fetch with Fetch, stop by cancelling Run's context.
type Dispatcher struct {
	cfg       Config
	clk       clock.Clock
	scheduler *batch.Scheduler
	requeue   *channelqueue.ChannelQueue[*batch.Batch]
	sem       chan struct{}
	logger    zerolog.Logger

	mu      sync.Mutex
	stopped bool

	wg sync.WaitGroup
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.Breaker == nil {
		return nil, fmt.Errorf("circuit breaker is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	cfg.applyDefaults()

	scheduler, err := batch.NewScheduler(batch.Config{
		MaxBatchSize: cfg.MaxBatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Clock:        cfg.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Dispatcher{
		cfg:       cfg,
		clk:       cfg.Clock,
		scheduler: scheduler,
		requeue:   channelqueue.New[*batch.Batch](-1),
		sem:       make(chan struct{}, cfg.MaxConcurrentBatches),
		logger:    log.With().Str("component", "dispatch").Logger(),
	}, nil
}

// Fetch returns the quote for key, from cache when fresh, otherwise through
// a batched upstream call. Blocks until the quote arrives, the request's
// deadline passes, or ctx is done.
func (d *Dispatcher) Fetch(ctx context.Context, key quote.Key, priority quote.Priority) (quote.Quote, error) {
	k := key.String()
	start := d.clk.Now()

	if q, ok := d.cfg.Cache.Get(k); ok {
		fetchesTotal.WithLabelValues("cache_hit").Inc()
		return q, nil
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		fetchesTotal.WithLabelValues("rejected").Inc()
		return quote.Quote{}, ErrShuttingDown
	}

	deadline := start.Add(d.cfg.RequestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	req := batch.NewRequest(k, priority, start, deadline)
	d.scheduler.Enqueue(req)
	d.mu.Unlock()

	// The deadline binds no matter where the batch sits; a batch parked
	// behind the limiter must not hold its callers past it.
	expiry := d.clk.Timer(deadline.Sub(start))
	defer expiry.Stop()

	select {
	case res := <-req.Done():
		return d.finishFetch(start, res)
	case <-expiry.C:
		req.Deliver(quote.Quote{}, fmt.Errorf("%w: deadline elapsed before delivery", ErrTimeout))
		return d.finishFetch(start, <-req.Done())
	case <-ctx.Done():
		// Resolve the request ourselves; a later batch delivery is a
		// silent no-op and the loser of this race is simply dropped.
		req.Deliver(quote.Quote{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
		return d.finishFetch(start, <-req.Done())
	}
}

// finishFetch records outcome metrics and unpacks the result.
func (d *Dispatcher) finishFetch(start time.Time, res batch.Result) (quote.Quote, error) {
	fetchDuration.Observe(d.clk.Now().Sub(start).Seconds())
	fetchesTotal.WithLabelValues(outcomeLabel(res.Err)).Inc()
	if res.Err != nil {
		return quote.Quote{}, res.Err
	}
	return res.Quote, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRetryExhausted):
		return "retry_exhausted"
	case errors.Is(err, ErrQuoteUnavailable):
		return "unavailable"
	case errors.Is(err, ErrShuttingDown):
		return "rejected"
	default:
		return "error"
	}
}

// Run drives batch release until ctx is done, then drains every pending
// request and waits for in-flight work. Always returns ctx's error.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clk.Ticker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info().
		Int("max_batch_size", d.cfg.MaxBatchSize).
		Dur("batch_timeout", d.cfg.BatchTimeout).
		Int("max_concurrent", d.cfg.MaxConcurrentBatches).
		Msg("Dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()

		case b := <-d.requeue.Out():
			d.launch(ctx, b)

		case <-ticker.C:
			for b := d.scheduler.PollReady(); b != nil; b = d.scheduler.PollReady() {
				d.launch(ctx, b)
			}
		}
	}
}

// launch runs a batch on a worker slot, blocking while all slots are busy.
func (d *Dispatcher) launch(ctx context.Context, b *batch.Batch) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		failBatch(b, ErrShuttingDown)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		d.executeBatch(ctx, b)
	}()
}

// executeBatch walks one batch through the breaker and limiter gates, the
// transport, and result delivery.
func (d *Dispatcher) executeBatch(ctx context.Context, b *batch.Batch) {
	inflightBatches.Inc()
	defer inflightBatches.Dec()

	active, expired := b.Pending(d.clk.Now())
	for _, req := range expired {
		req.Deliver(quote.Quote{}, fmt.Errorf("%w: deadline passed before dispatch", ErrTimeout))
	}
	if len(active) == 0 {
		return
	}

	if !d.cfg.Breaker.Allow() {
		batchesDispatchedTotal.WithLabelValues("circuit_open").Inc()
		for _, req := range active {
			req.Deliver(quote.Quote{}, fmt.Errorf("%w: upstream isolated", ErrCircuitOpen))
		}
		return
	}

	priority := b.MaxPriority()
	if !d.cfg.Limiter.TryAcquire(priority) {
		// Give back the half-open probe slot if we claimed it; this
		// batch never reached the upstream.
		d.cfg.Breaker.CancelProbe()
		d.deferBatch(b)
		return
	}

	results, err := d.callWithRetry(ctx, b.Keys(), priority)
	if err != nil {
		batchesDispatchedTotal.WithLabelValues("error").Inc()
		d.logger.Warn().
			Err(err).
			Str("batch_id", b.ID).
			Int("keys", len(b.Keys())).
			Msg("Batch failed")
		for _, req := range active {
			req.Deliver(quote.Quote{}, err)
		}
		return
	}

	batchesDispatchedTotal.WithLabelValues("success").Inc()
	d.deliver(active, results)
}

// deferBatch schedules a limiter-denied batch for another dispatch attempt
// after the limiter's recommended wait.
func (d *Dispatcher) deferBatch(b *batch.Batch) {
	batchesRequeuedTotal.Inc()
	hint := d.cfg.Limiter.WaitHint()

	// Never park past the soonest member deadline: the redispatch then
	// prunes the expired members instead of leaving the batch waiting on
	// a refill nobody can use.
	now := d.clk.Now()
	for _, req := range b.Members() {
		if req.Resolved() {
			continue
		}
		if until := req.Deadline.Sub(now); until < hint {
			hint = until
		}
	}
	if hint <= 0 {
		hint = d.cfg.PollInterval
	}

	d.logger.Debug().
		Str("batch_id", b.ID).
		Dur("wait", hint).
		Msg("Rate limiter denied batch - deferring")

	d.clk.AfterFunc(hint, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if stopped {
			failBatch(b, ErrShuttingDown)
			return
		}
		d.requeue.In() <- b
	})
}

// callWithRetry executes the transport call under the retry policy. The
// breaker records every attempt's outcome; rate-limited responses also
// trigger limiter backoff. 4xx responses are never retried.
func (d *Dispatcher) callWithRetry(ctx context.Context, keys []string, priority quote.Priority) (map[string]quote.Quote, error) {
	var lastErr error

	for attempt := 1; attempt <= d.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 1 && !d.cfg.Breaker.Allow() {
			return nil, fmt.Errorf("%w: opened during retries", ErrCircuitOpen)
		}

		results, err := d.cfg.Transport.Execute(ctx, keys)
		if err == nil {
			d.cfg.Breaker.RecordSuccess()
			return results, nil
		}

		d.cfg.Breaker.RecordFailure()
		lastErr = err

		var ue *upstream.Error
		classified := errors.As(err, &ue)
		if classified && ue.Kind == upstream.KindRateLimited {
			d.cfg.Limiter.OnRateLimitExceeded()
		}
		if classified && !ue.Retriable() {
			return nil, err
		}
		if attempt >= d.cfg.Retry.MaxAttempts {
			break
		}

		kind := "network"
		if classified {
			kind = string(ue.Kind)
		}
		retriesTotal.WithLabelValues(kind).Inc()

		delay := d.cfg.Retry.Delay(attempt)
		retryBackoffSeconds.Observe(delay.Seconds())

		d.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying batch after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-d.clk.After(delay):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, d.cfg.Retry.MaxAttempts, lastErr)
}

// deliver resolves each member from the result map, caches every returned
// quote, and hands successes to the sink.
func (d *Dispatcher) deliver(active []*batch.Request, results map[string]quote.Quote) {
	observedAt := d.clk.Now()

	for key, q := range results {
		d.cfg.Cache.Put(key, q, d.cfg.CacheTTL)
		d.emit(key, q, observedAt)
	}

	for _, req := range active {
		q, ok := results[req.Key]
		if !ok {
			req.Deliver(quote.Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, req.Key))
			continue
		}
		req.Deliver(q, nil)
	}
}

// emit writes one observation to the sink in the background. Sink errors
// are logged, never propagated.
func (d *Dispatcher) emit(key string, q quote.Quote, observedAt time.Time) {
	if d.cfg.Sink == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := d.cfg.Sink.Write(ctx, key, q, observedAt); err != nil {
			d.logger.Warn().Err(err).Str("key", key).Msg("Sink write failed")
		}
	}()
}

// shutdown fails every pending request and waits for in-flight batches and
// sink writes.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	for _, b := range d.scheduler.Drain() {
		failBatch(b, ErrShuttingDown)
	}

	// Drain anything a deferral timer already queued. Timers that fire
	// after this see d.stopped and fail their batches directly.
	for {
		select {
		case b := <-d.requeue.Out():
			failBatch(b, ErrShuttingDown)
		default:
			d.wg.Wait()
			d.logger.Info().Msg("Dispatcher stopped")
			return
		}
	}
}

// failBatch resolves every unresolved member with err.
func failBatch(b *batch.Batch, err error) {
	for _, req := range b.Members() {
		req.Deliver(quote.Quote{}, err)
	}
}

// PendingRequests reports requests enqueued but not yet dispatched.
func (d *Dispatcher) PendingRequests() int {
	return d.scheduler.PendingRequests()
}
