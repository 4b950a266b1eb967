// Package retry provides bounded retry with jittered exponential backoff.
//
// It is intended only for infrastructure connection setup (postgres, redis,
// kafka). Evaluator-stage failures inside a verification run are never
// retried; a failed run is terminal and the caller starts a new one.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is tuned for service startup: fail within roughly a minute.
var DefaultPolicy = Policy{
	MaxAttempts: 6,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    15 * time.Second,
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// Delay doubles per attempt with up to 50% random jitter.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(jittered):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, p.MaxAttempts, lastErr)
}
