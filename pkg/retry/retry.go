// Package retry runs message handlers under an exponential backoff policy.
// An error stops the loop early when it reports itself fatal, which is how
// validation failures and missing caches skip straight to the DLQ.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Merge returns p with every positive field of o applied on top.
func (p Policy) Merge(o Policy) Policy {
	if o.MaxAttempts > 0 {
		p.MaxAttempts = o.MaxAttempts
	}
	if o.InitialInterval > 0 {
		p.InitialInterval = o.InitialInterval
	}
	if o.MaxInterval > 0 {
		p.MaxInterval = o.MaxInterval
	}
	if o.Multiplier > 0 {
		p.Multiplier = o.Multiplier
	}
	if o.MaxElapsedTime > 0 {
		p.MaxElapsedTime = o.MaxElapsedTime
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	// zero disables the elapsed-time cap
	exp.MaxElapsedTime = p.MaxElapsedTime
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Notify is called after a failed attempt that will be retried. next is the
// delay chosen by the backoff before the following attempt.
type Notify func(attempt int, err error, next time.Duration)

// Do calls fn until it succeeds, returns a fatal error, the context is done,
// or the policy runs out of attempts. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, notify Notify) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && IsFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) {
			notify(attempt, err, next)
		}
	}

	err := backoff.RetryNotify(op, p.backOff(ctx), onRetry)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

type fatal interface{ IsFatal() bool }

type retryable interface{ IsRetryable() bool }

// IsFatal reports whether err, or an error it wraps, must not be retried.
// An error that only says it is retryable counts as fatal when it says no.
func IsFatal(err error) bool {
	var f fatal
	if errors.As(err, &f) && f.IsFatal() {
		return true
	}
	var r retryable
	if errors.As(err, &r) {
		return !r.IsRetryable()
	}
	return false
}
