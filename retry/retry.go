// Package retry wraps exchange-facing calls with bounded retry and exponential
// backoff on transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ewnd/pulse/shared"
	"github.com/rs/zerolog"
)

const (
	// defaultMaxAttempts is the default number of attempts for an operation.
	defaultMaxAttempts = 5
	// defaultInitialDelay is the default delay before the first retry.
	defaultInitialDelay = time.Second * 2
	// defaultBackoffMultiplier is the default delay growth factor between retries.
	defaultBackoffMultiplier = 2
)

// Policy represents the retry configuration for exchange-facing operations.
// A policy is immutable once created.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// BackoffMultiplier scales the delay after every retry.
	BackoffMultiplier float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       defaultMaxAttempts,
		InitialDelay:      defaultInitialDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

// Validate asserts the policy has sane inputs.
func (p *Policy) Validate() error {
	var errs error

	if p.MaxAttempts < 1 {
		errs = errors.Join(errs, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.InitialDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("initial delay cannot be negative, got %s", p.InitialDelay))
	}
	if p.BackoffMultiplier < 1 {
		errs = errors.Join(errs, fmt.Errorf("backoff multiplier must be at least 1, got %f", p.BackoffMultiplier))
	}

	return errs
}

// Do executes the provided operation under the provided policy. Failures
// classified as retryable trigger another attempt after a backoff delay,
// non-retryable failures and the final attempt's failure propagate
// immediately. The backoff wait is cancellable through the context.
//
// Retrying a submission whose success response was lost can duplicate the
// operation. Callers mitigate this by stamping submissions with client order
// ids at the gateway.
func Do[T any](ctx context.Context, policy Policy, logger *zerolog.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	delay := policy.InitialDelay
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if !shared.Retryable(err) || attempt >= policy.MaxAttempts {
			return zero, err
		}

		logger.Warn().Msgf("attempt %d/%d failed: %v, retrying in %s",
			attempt, policy.MaxAttempts, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffMultiplier)
	}
}
