package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/obs"
)

// retryPolicy wraps a callable with bounded retries on retryable errors,
// jittered exponential backoff between attempts (spec §4.E: "delay
// between attempt n and n+1 is min(base*2^(n-1), cap) plus ±25% uniform
// jitter"). backoff.ExponentialBackOff already implements exactly that
// formula (Multiplier 2, RandomizationFactor 0.25), so the policy is a
// thin shim translating it into a bounded retry loop over domain errors.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	capDelay   time.Duration
	logger     *obs.Logger
}

func newRetryPolicy(cfg ClassConfig, logger *obs.Logger) retryPolicy {
	return retryPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		capDelay:   cfg.CapDelay,
		logger:     logger,
	}
}

func (p retryPolicy) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.baseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.25
	eb.MaxInterval = p.capDelay
	eb.MaxElapsedTime = 0 // bounded by attempt count, not elapsed wall time
	// maxRetries counts total attempts (spec §4.E: "retry up to
	// maxRetries"); backoff.WithMaxRetries counts retries after the
	// first attempt, so subtract one.
	return backoff.WithMaxRetries(eb, uint64(maxInt(p.maxRetries-1, 0)))
}

// execute runs fn, retrying on domain.Retryable errors up to
// maxRetries-1 additional attempts (maxRetries counts the total number
// of tries, matching spec §4.E's "retry up to maxRetries"). Non-retryable
// errors (validation, not-found, cycle, ...) return immediately.
//
// Each attempt gets its own timeout budget derived fresh from ctx (spec
// §4.E: "every wrapped call has a per-class timeout"), not one timeout
// shared across the whole retry sequence — otherwise the first attempt's
// expiry would leave every later attempt's context already Done before
// it even runs.
func (p retryPolicy) execute(ctx context.Context, class string, timeout time.Duration, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		cctx, cancel := contextWithTimeout(ctx, timeout)
		defer cancel()
		err := fn(cctx)
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		p.logger.Warn("retrying operation after retryable failure",
			zap.String("class", class),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(p.newBackOff(), ctx))
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
