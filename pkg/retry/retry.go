// Package retry implements the exponential backoff retry policy used at
// RPC/bridge boundaries by the ExecutionPlanner (spec §4.11, §7): three
// retries (four attempts in all) by default, delay doubling from an
// initial 1s.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy mirrors the spec's {max_retries=3, backoff: t·2^n, initial_delay=1s}.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// DefaultPolicy is the spec-mandated default.
var DefaultPolicy = Policy{MaxRetries: 3, InitialDelay: time.Second}

// Do runs fn, retrying on error per the policy, and respects ctx
// cancellation/deadline. It returns the last error if all attempts fail.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by MaxRetries, not elapsed time

	bc := backoff.WithContext(b, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries+1 {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(op, bc)
}
