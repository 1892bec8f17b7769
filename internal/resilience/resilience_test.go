package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mvaleed/acs/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testGuard(t *testing.T, cfg ClassConfig) *Guard {
	t.Helper()
	return New(nil, WithClassConfigs(map[string]ClassConfig{ClassDatabase: cfg, ClassExternal: cfg}))
}

// TestBreaker_OpensAfterConsecutiveFailures covers testable property 8:
// after failureThreshold consecutive failures the breaker is Open and
// short-circuits without invoking fn.
func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 3, RecoveryWindow: 50 * time.Millisecond, Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond, CapDelay: time.Millisecond}
	g := testGuard(t, cfg)

	for i := 0; i < 3; i++ {
		err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
			return domain.ErrPersistenceFailure
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, g.BreakerState(ClassDatabase))

	calls := 0
	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, 0, calls, "fn must not run while the breaker is open")
}

// TestBreaker_HalfOpenProbeClosesOnSuccess covers: after recoveryWindow,
// the next attempt probes HalfOpen, and one success closes it.
func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 2, RecoveryWindow: 20 * time.Millisecond, Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond, CapDelay: time.Millisecond}
	g := testGuard(t, cfg)

	for i := 0; i < 2; i++ {
		_ = g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
			return domain.ErrPersistenceFailure
		})
	}
	require.Equal(t, StateOpen, g.BreakerState(ClassDatabase))

	time.Sleep(30 * time.Millisecond)

	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, g.BreakerState(ClassDatabase))
}

// TestBreaker_HalfOpenProbeReopensOnFailure: one failure during the probe
// re-opens the breaker.
func TestBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 2, RecoveryWindow: 20 * time.Millisecond, Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond, CapDelay: time.Millisecond}
	g := testGuard(t, cfg)

	for i := 0; i < 2; i++ {
		_ = g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
			return domain.ErrPersistenceFailure
		})
	}
	time.Sleep(30 * time.Millisecond)

	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		return domain.ErrPersistenceFailure
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, g.BreakerState(ClassDatabase))
}

// TestRetry_RetriesRetryableErrors asserts a retryable error is retried
// up to maxRetries total attempts, then gives up with the last error.
func TestRetry_RetriesRetryableErrors(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 100, RecoveryWindow: time.Second, Timeout: time.Second, MaxRetries: 3, BaseDelay: time.Millisecond, CapDelay: 2 * time.Millisecond}
	g := testGuard(t, cfg)

	attempts := 0
	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		attempts++
		return domain.ErrTimeout
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 3, attempts)
}

// TestRetry_NonRetryableFailsFast asserts a non-retryable error (e.g.
// InvalidArgument) is never retried.
func TestRetry_NonRetryableFailsFast(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 100, RecoveryWindow: time.Second, Timeout: time.Second, MaxRetries: 5, BaseDelay: time.Millisecond, CapDelay: 2 * time.Millisecond}
	g := testGuard(t, cfg)

	attempts := 0
	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		attempts++
		return domain.ErrInvalidArgument
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 1, attempts)
}

// TestHealth_StatusThresholds covers the Healthy/Warning/Critical
// boundaries spec §4.E defines over the rolling error rate.
func TestHealth_StatusThresholds(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 1000, RecoveryWindow: time.Second, Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond, CapDelay: time.Millisecond}
	g := testGuard(t, cfg)

	runWithFailureRate(g, 20, 0) // all success
	assert.Equal(t, StatusHealthy, g.Health().Overall())

	g2 := testGuard(t, cfg)
	runWithFailureRate(g2, 20, 3) // 15% failures
	assert.Equal(t, StatusWarning, g2.Health().Overall())

	g3 := testGuard(t, cfg)
	runWithFailureRate(g3, 20, 6) // 30% failures
	assert.Equal(t, StatusCritical, g3.Health().Overall())
}

func runWithFailureRate(g *Guard, n, failures int) {
	for i := 0; i < n; i++ {
		fail := i < failures
		_ = g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
			if fail {
				return domain.ErrPersistenceFailure
			}
			return nil
		})
	}
}

func TestGuard_TimeoutCountsAsFailure(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 100, RecoveryWindow: time.Second, Timeout: 5 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond, CapDelay: time.Millisecond}
	g := testGuard(t, cfg)

	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)

	report := g.Health().Report()
	require.Len(t, report, 1)
	assert.Equal(t, int64(1), report[0].Failed)
}

// TestGuard_EachRetryAttemptGetsItsOwnTimeout guards against a shared
// timeout budget leaking across retries: with MaxRetries > 1, every
// attempt blocks on <-ctx.Done() and must see its own per-class timeout
// fire, not inherit an already-expired context from the previous
// attempt. If the timeout were applied once around the whole retry
// sequence, only the first attempt would ever run.
func TestGuard_EachRetryAttemptGetsItsOwnTimeout(t *testing.T) {
	cfg := ClassConfig{FailureThreshold: 100, RecoveryWindow: time.Second, Timeout: 5 * time.Millisecond, MaxRetries: 3, BaseDelay: time.Millisecond, CapDelay: time.Millisecond}
	g := testGuard(t, cfg)

	attempts := 0
	err := g.Execute(context.Background(), ClassDatabase, func(ctx context.Context) error {
		attempts++
		start := time.Now()
		<-ctx.Done()
		assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond, "attempt %d should run its own timeout, not an already-expired one", attempts)
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
