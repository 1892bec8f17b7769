// Package resilience implements the Resilience & Health component (spec
// §4.E): per-operation-class circuit breakers, jittered-backoff retry,
// timeouts, and rolling health metrics wrapped around every externally
// facing call the core makes (today: persistence; the same Guard can wrap
// any future collaborator reached through a port).
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/obs"
)

// Operation classes that DefaultClassConfigs gives defaults for. A class
// without its own ClassConfig uses the ClassExternal config.
const (
	ClassDatabase   = "database"
	ClassRPC        = "rpc"
	ClassFilesystem = "filesystem"
	ClassExternal   = "external"
	ClassNetwork    = "network"
)

// ClassConfig is the per-operation-class tuning for a circuit breaker,
// its timeout, and its retry policy (spec §4.E: "configurable per
// class").
type ClassConfig struct {
	FailureThreshold uint32        // consecutive failures before Open (spec default varies per class)
	RecoveryWindow   time.Duration // Open -> HalfOpen delay
	Timeout          time.Duration // per-call timeout; counts as a failure on expiry
	MaxRetries       int
	BaseDelay        time.Duration
	CapDelay         time.Duration
}

// DefaultClassConfigs returns the default config for each of the five
// classes above; the ClassExternal entry also serves any unlisted class.
func DefaultClassConfigs() map[string]ClassConfig {
	return map[string]ClassConfig{
		ClassDatabase: {
			FailureThreshold: 5,
			RecoveryWindow:   30 * time.Second,
			Timeout:          30 * time.Second,
			MaxRetries:       3,
			BaseDelay:        1 * time.Second,
			CapDelay:         30 * time.Second,
		},
		ClassExternal: {
			FailureThreshold: 4,
			RecoveryWindow:   20 * time.Second,
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			BaseDelay:        1 * time.Second,
			CapDelay:         30 * time.Second,
		},
		ClassNetwork: {
			FailureThreshold: 5,
			RecoveryWindow:   15 * time.Second,
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			BaseDelay:        1 * time.Second,
			CapDelay:         30 * time.Second,
		},
		ClassRPC: {
			FailureThreshold: 5,
			RecoveryWindow:   15 * time.Second,
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			BaseDelay:        1 * time.Second,
			CapDelay:         30 * time.Second,
		},
		ClassFilesystem: {
			FailureThreshold: 5,
			RecoveryWindow:   10 * time.Second,
			Timeout:          5 * time.Second,
			MaxRetries:       3,
			BaseDelay:        1 * time.Second,
			CapDelay:         30 * time.Second,
		},
	}
}

// BreakerState mirrors gobreaker's three states under the names spec §4.E
// uses, so logs and metrics read the way the spec describes them rather
// than gobreaker's own State.String() output.
type BreakerState string

const (
	StateClosed   BreakerState = "Closed"
	StateOpen     BreakerState = "Open"
	StateHalfOpen BreakerState = "HalfOpen"
)

func fromGobreakerState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// breakerRegistry lazily builds one gobreaker.CircuitBreaker per
// operation class, since classes are named by callers at call time
// (spec §4.E: "per operation class") rather than enumerated up front.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	configs  map[string]ClassConfig
	logger   *obs.Logger
	onChange func(class string, from, to BreakerState)
}

func newBreakerRegistry(configs map[string]ClassConfig, logger *obs.Logger, onChange func(class string, from, to BreakerState)) *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		configs:  configs,
		logger:   logger,
		onChange: onChange,
	}
}

func (r *breakerRegistry) get(class string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[class]; ok {
		return b
	}

	cfg, ok := r.configs[class]
	if !ok {
		cfg = r.configs[ClassExternal]
	}

	settings := gobreaker.Settings{
		Name:        class,
		MaxRequests: 1, // one HalfOpen probe, per spec: "one success closes, one failure re-opens"
		Interval:    0, // never reset Closed-state counts on a timer; only consecutive failures matter
		Timeout:     cfg.RecoveryWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromS, toS := fromGobreakerState(from), fromGobreakerState(to)
			r.logger.Info("circuit breaker state transition",
				zap.String("class", name),
				zap.String("from", string(fromS)),
				zap.String("to", string(toS)),
			)
			if r.onChange != nil {
				r.onChange(name, fromS, toS)
			}
		},
	}

	b := gobreaker.NewCircuitBreaker[any](settings)
	r.breakers[class] = b
	return b
}

// State reports the current state of class's breaker without tripping a
// probe request (Closed if the class has never been used).
func (r *breakerRegistry) State(class string) BreakerState {
	r.mu.Lock()
	b, ok := r.breakers[class]
	r.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return fromGobreakerState(b.State())
}

// execute runs fn through the breaker for class, translating gobreaker's
// ErrOpenState/ErrTooManyRequests into domain.ErrCircuitOpen so callers
// never import gobreaker directly (spec §4.E: "fails with CircuitOpen").
func (r *breakerRegistry) execute(class string, fn func() error) error {
	b := r.get(class)
	_, err := b.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return domain.ErrCircuitOpen
	}
	return err
}

// contextWithTimeout wraps ctx with class's configured timeout, the
// layer below the breaker in the execution order (spec §4.E: "a timeout
// counts as a failure for both retry and breaker purposes").
func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
