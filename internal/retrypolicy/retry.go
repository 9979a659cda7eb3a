// Package retrypolicy implements the retry/backoff/circuit-breaker policy
// guarding every engine call (spec §4.B).
package retrypolicy

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
)

// Defaults per spec §4.B.
const (
	MaxAttempts        = 3
	BaseDelay          = 1 * time.Second
	MaxDelay           = 30 * time.Second
	DelayFloor         = 100 * time.Millisecond
	RateLimitFloor     = 1 * time.Second
	JitterWindow       = 100 * time.Millisecond
	CallTimeout        = 30 * time.Second
	BreakerFailures    = 3
	BreakerOpenTimeout = 30 * time.Second
)

// RetryableStatus reports whether an HTTP status code is retryable per
// spec §4.B.
func RetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusError lets callers inside fn communicate the HTTP status that
// produced an error, so the policy can classify it without parsing strings.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// retryableMessage matches spec §4.B's "messages matching connection or
// timeout case-insensitively" fallback classification for errors that
// don't carry an HTTP status (socket errors, DNS failures, etc).
func retryableMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout")
}

// isRetryable classifies an error as retryable per spec §4.B.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return RetryableStatus(se.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return retryableMessage(err)
}

// isRateLimited reports whether err represents a 429 response, used to
// force the 1s minimum delay component.
func isRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == 429
}

// Policy composes exponential backoff, jitter, a circuit breaker, and a
// per-call timeout around an arbitrary call (spec §4.B).
type Policy struct {
	breaker *gobreaker.CircuitBreaker[any]
	log     *logger.Logger
	clock   func() time.Time
	rng     *rand.Rand
}

// New constructs a retry policy with a fresh circuit breaker.
func New(log *logger.Logger) *Policy {
	settings := gobreaker.Settings{
		Name:        "engine-client",
		MaxRequests: 1, // single probe while half-open (spec §4.B)
		Interval:    0,
		Timeout:     BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerFailures
		},
		// Only retryable failures count toward tripping the breaker;
		// non-retryable errors (bad requests, auth failures) and
		// cancellation are caller/request problems, not engine health.
		// The explicit Canceled check guards against a retryable-status
		// error that also carries cancellation (e.g. a wrapped context
		// error), so cancellation is never recorded as a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err) || errors.Is(err, context.Canceled)
		},
	}

	return &Policy{
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		log:     log,
		clock:   time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// withJitter adds spec §4.B's uniform ±100ms jitter and floors to the
// delay base computed by the cenkalti/backoff schedule, forcing a 1s
// minimum component on rate-limited responses.
func (p *Policy) withJitter(base time.Duration, rateLimited bool) time.Duration {
	if base > MaxDelay {
		base = MaxDelay
	}

	jitter := time.Duration(p.rng.Int63n(int64(2*JitterWindow))) - JitterWindow
	d := base + jitter

	if rateLimited && d < RateLimitFloor {
		d = RateLimitFloor
	}
	if d < DelayFloor {
		d = DelayFloor
	}
	return d
}

// Do executes fn under the circuit breaker, retry schedule, and per-call
// timeout. Cancellation from ctx is respected at every await point and is
// NOT counted as a breaker failure (spec §4.B). The exponential schedule
// itself (1s, 2s, 4s, ... capped at 30s) comes from cenkalti/backoff's
// ExponentialBackOff with randomization disabled; spec jitter is layered
// on top in withJitter so the two don't compound.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = BaseDelay
	boff.MaxInterval = MaxDelay
	boff.Multiplier = 2
	boff.RandomizationFactor = 0
	boff.MaxElapsedTime = 0

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			d := p.withJitter(boff.NextBackOff(), isRateLimited(lastErr))
			select {
			case <-ctx.Done():
				return nil, domain.Wrap(domain.KindOperationCancelled, "retry cancelled", ctx.Err())
			case <-time.After(d):
			}
		}

		// Caller cancellation observed before the call starts must not be
		// recorded as a breaker failure (spec §4.B).
		if ctx.Err() != nil {
			return nil, domain.Wrap(domain.KindOperationCancelled, "call cancelled", ctx.Err())
		}

		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		result, err := p.breaker.Execute(func() (any, error) {
			return fn(callCtx)
		})
		cancel()

		if ctx.Err() != nil {
			return nil, domain.Wrap(domain.KindOperationCancelled, "call cancelled", ctx.Err())
		}

		if err == nil {
			data, _ := result.([]byte)
			return data, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.log.Warn("retrypolicy: circuit open, fast-failing")
			return nil, domain.New(domain.KindCircuitOpen, "circuit breaker is open")
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}

		p.log.Debug("retrypolicy: attempt %d/%d failed: %v", attempt, MaxAttempts, err)
	}

	return nil, lastErr
}
