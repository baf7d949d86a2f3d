// Package retry wraps remote calls in exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// Defaults used when a Policy field is zero.
const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMultiplier   = 2.0
)

// Policy retries a failing operation up to MaxAttempts times in total.
//
// Before retry n (n failed attempts so far) it sleeps
// InitialDelay*Multiplier^(n-1) plus a uniform jitter in [0, delay/2).
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64

	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything except context cancellation.
	Retryable func(error) bool

	Logger *logging.Logger

	// jitter returns a value in [0, n); tests replace it.
	jitter func(n int64) int64
}

// FromConfig builds a Policy from the retry config section.
func FromConfig(cfg config.RetryConfig, logger *logging.Logger) Policy {
	return Policy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay.Duration(),
		Multiplier:   cfg.Multiplier,
		Logger:       logger,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Logger == nil {
		p.Logger = logging.Nop()
	}
	if p.jitter == nil {
		p.jitter = rand.Int64N
	}
	return p
}

// Do runs op until it succeeds or the policy gives up, returning op's last error.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, next time.Duration) {
		p.Logger.Warn(ctx, "retrying after failure",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", next),
			zap.Error(err),
		)
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		p.Logger.Debug(ctx, "operation failed",
			zap.String("operation", name),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return v, err
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Delay returns the sleep before retry n (1-based) without jitter.
func (p Policy) Delay(n int) time.Duration {
	p = p.withDefaults()
	if n < 1 {
		n = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n-1)))
}

func (p Policy) newBackOff() *jitterBackOff {
	return &jitterBackOff{policy: p}
}

// jitterBackOff implements backoff.BackOff with half-delay jitter.
type jitterBackOff struct {
	policy   Policy
	failures int
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	b.failures++
	delay := b.policy.Delay(b.failures)
	if half := int64(delay / 2); half > 0 {
		delay += time.Duration(b.policy.jitter(half))
	}
	return delay
}

func (b *jitterBackOff) Reset() {
	b.failures = 0
}
