package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls bounded retries with randomized exponential waits.
type Policy struct {
	// Attempts is the total number of tries including the first. Values
	// below 1 are treated as 1.
	Attempts int

	// MinWait and MaxWait bound the wait between tries. The wait before try
	// n+1 is drawn uniformly from [MinWait, min(MaxWait, MinWait*Multiplier^n)].
	MinWait    time.Duration
	MaxWait    time.Duration
	Multiplier float64

	// Retryable overrides the transient check. Nil means IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error)

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy returns a policy that makes retryCount retries after the first
// try, waiting between minWait and maxWait.
func NewPolicy(retryCount int, minWait, maxWait time.Duration) Policy {
	if retryCount < 0 {
		retryCount = 0
	}
	return Policy{
		Attempts:   retryCount + 1,
		MinWait:    minWait,
		MaxWait:    maxWait,
		Multiplier: 2,
	}
}

// PolicyFromSeconds is NewPolicy with waits given in (fractional) seconds,
// the unit used in config files.
func PolicyFromSeconds(retryCount int, minWait, maxWait float64) Policy {
	return NewPolicy(retryCount,
		time.Duration(minWait*float64(time.Second)),
		time.Duration(maxWait*float64(time.Second)))
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are used up, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		var val T
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := p.sleep(ctx, p.wait(attempt)); serr != nil {
			return zero, err
		}
	}
	return zero, err
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.MinWait < 0 {
		p.MinWait = 0
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = p.MinWait
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	return p
}

// wait returns the randomized delay after the given 1-based attempt.
func (p Policy) wait(attempt int) time.Duration {
	ceiling := float64(p.MinWait) * math.Pow(p.Multiplier, float64(attempt))
	if ceiling > float64(p.MaxWait) {
		ceiling = float64(p.MaxWait)
	}
	span := ceiling - float64(p.MinWait)
	if span <= 0 {
		return p.MinWait
	}
	return p.MinWait + time.Duration(rand.Float64()*span)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
