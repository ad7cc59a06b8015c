// Package retry re-runs story server calls that failed for transient reasons.
package retry

import (
	"context"
	"github.com/cenkalti/backoff/v5"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/failure"
	"math"
	"time"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts counts the first attempt too. Zero means DefaultMaxAttempts.
	MaxAttempts uint
	// InitialDelay is the wait before the second attempt. Every further wait doubles.
	InitialDelay time.Duration
	// Notify, when set, is called with the failure and the upcoming delay before each wait.
	Notify func(err error, delay time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Notify:       nil,
	}
}

// Do runs op until it succeeds, fails with a kind that is not [failure.Kind.Retryable], or MaxAttempts is reached.
//
// The wait before attempt i+2 is InitialDelay·2^i. There is no wait after the final attempt. The returned error is
// the one from the last attempt. Cancelling ctx stops any pending wait.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2, //nolint:mnd // doubling
		MaxInterval:         time.Duration(math.MaxInt64),
	}
	schedule.Reset()

	opts := []backoff.RetryOption{
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(maxAttempts),
		// The attempt ceiling is the only bound.
		backoff.WithMaxElapsedTime(0),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		res, opErr := op(ctx)
		if opErr != nil && !failure.Classify(opErr).Retryable() {
			return res, backoff.Permanent(opErr)
		}
		return res, opErr
	}, opts...)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return result, err
	}
	return result, nil
}
