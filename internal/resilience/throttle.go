package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Throttle paces and bounds calls to one quota-limited service across all
// workers of a run. A permit combines a concurrency slot with a rate-limiter
// token. The rate adapts: halved on 429 (down to initial/4) and raised by 20%
// on success, never above the configured rate.
//
// A nil *Throttle admits everything.
type Throttle struct {
	name    string
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu      sync.Mutex
	initial rate.Limit
	floor   rate.Limit
	current rate.Limit
}

// NewThrottle creates a throttle allowing perSec calls per second with the
// given burst and at most concurrency calls in flight.
func NewThrottle(name string, perSec float64, burst, concurrency int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	return &Throttle{
		name:    name,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		limiter: rate.NewLimiter(limit, burst),
		initial: limit,
		floor:   limit / 4,
		current: limit,
	}
}

// Acquire blocks until a permit is available. The returned release must be
// called exactly once the external call finishes, whatever its result;
// extra calls are no-ops.
func (t *Throttle) Acquire(ctx context.Context) (func(), error) {
	if t == nil {
		return func() {}, nil
	}
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrapf(err, "throttle %s: acquire slot", t.name)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		t.sem.Release(1)
		return nil, eris.Wrapf(err, "throttle %s: wait for rate", t.name)
	}
	var once sync.Once
	return func() { once.Do(func() { t.sem.Release(1) }) }, nil
}

// Observe adapts the rate to the result of a throttled call.
func (t *Throttle) Observe(err error) {
	if t == nil {
		return
	}
	switch {
	case err == nil:
		t.onSuccess()
	case IsRateLimited(err):
		t.onRateLimit()
	}
}

// Limit returns the current rate.
func (t *Throttle) Limit() rate.Limit {
	if t == nil {
		return rate.Inf
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Throttle) onSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == rate.Inf || t.current >= t.initial {
		return
	}
	next := t.current * 1.2
	if next > t.initial {
		next = t.initial
	}
	t.current = next
	t.limiter.SetLimit(next)
}

func (t *Throttle) onRateLimit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == rate.Inf {
		return
	}
	next := t.current / 2
	if next < t.floor {
		next = t.floor
	}
	t.current = next
	t.limiter.SetLimit(next)
	zap.L().Warn("throttle: reducing rate after rate limit",
		zap.String("service", t.name),
		zap.Float64("new_rate", float64(next)),
	)
}

// Call runs fn while holding a permit and feeds the result back into the
// rate adaptation.
func Call[T any](ctx context.Context, t *Throttle, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	release, err := t.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	val, err := fn(ctx)
	t.Observe(err)
	return val, err
}
