package resilience

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/obs"
)

// Guard is the resilience wrapper every externally facing operation runs
// through (spec §4.E): the breaker wraps the retry loop and each retry
// attempt runs under its own per-class timeout, with outcomes recorded
// into Health. It satisfies persistence.Guard without
// that package importing this one (see persistence/guard.go).
type Guard struct {
	configs          map[string]ClassConfig
	breakers         *breakerRegistry
	health           *Health
	logger           *obs.Logger
	registryOverride *prometheus.Registry
	onStateChange    func(class string, from, to BreakerState)
}

// Option configures a Guard at construction time.
type Option func(*Guard)

func WithClassConfigs(cfgs map[string]ClassConfig) Option {
	return func(g *Guard) { g.configs = cfgs }
}

func WithLogger(l *obs.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

func WithRegistry(r *prometheus.Registry) Option {
	return func(g *Guard) { g.registryOverride = r }
}

// WithOnStateChange registers an additional callback invoked whenever any
// class's breaker changes state, alongside the Guard's own logging. Used
// to publish CircuitStateChanged events without this package depending on
// the event package (spec §4.E supplemented event emission).
func WithOnStateChange(fn func(class string, from, to BreakerState)) Option {
	return func(g *Guard) { g.onStateChange = fn }
}

// New builds a Guard with the spec's default class configs unless
// overridden, registering Prometheus collectors against reg (nil skips
// Prometheus registration, e.g. in tests).
func New(reg *prometheus.Registry, opts ...Option) *Guard {
	g := &Guard{
		configs: DefaultClassConfigs(),
		logger:  obs.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registryOverride != nil {
		reg = g.registryOverride
	}

	onChange := func(class string, from, to BreakerState) {
		g.logger.Info("circuit state changed", zap.String("class", class), zap.String("from", string(from)), zap.String("to", string(to)))
		if g.onStateChange != nil {
			g.onStateChange(class, from, to)
		}
	}
	g.breakers = newBreakerRegistry(g.configs, g.logger, onChange)
	g.health = newHealth(reg, g.breakers)
	return g
}

// Execute runs fn under class's circuit breaker, timeout, and retry
// policy, recording the outcome into Health. This is the single entry
// point every collaborator (persistence today) calls through; it never
// returns a raw I/O error type, only the domain sentinels fn itself
// returns plus domain.ErrCircuitOpen on a tripped breaker.
func (g *Guard) Execute(ctx context.Context, class string, fn func(ctx context.Context) error) error {
	cfg := g.classConfig(class)
	retry := newRetryPolicy(cfg, g.logger)

	start := time.Now()
	err := g.breakers.execute(class, func() error {
		return retry.execute(ctx, class, cfg.Timeout, fn)
	})
	g.health.record(class, err == nil, time.Since(start), err)
	return err
}

func (g *Guard) classConfig(class string) ClassConfig {
	if cfg, ok := g.configs[class]; ok {
		return cfg
	}
	return g.configs[ClassExternal]
}

// BreakerState reports the current state of class's breaker, for health
// endpoints and tests.
func (g *Guard) BreakerState(class string) BreakerState { return g.breakers.State(class) }

// Health exposes the rolling metrics/status surface (spec §4.E).
func (g *Guard) Health() *Health { return g.health }

// Sampler periodically logs overall health and per-class status changes
// (spec §4.E: "a background task samples health each minute and logs
// state changes"), modeled on the teacher's token-cleanup ticker.
type Sampler struct {
	guard    *Guard
	interval time.Duration
	logger   *obs.Logger

	lastOverall Status
	lastClass   map[string]Status
}

func NewSampler(guard *Guard, interval time.Duration, logger *obs.Logger) *Sampler {
	if logger == nil {
		logger = obs.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sampler{guard: guard, interval: interval, logger: logger, lastClass: make(map[string]Status)}
}

// Run samples health every interval until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	overall := s.guard.Health().Overall()
	if overall != s.lastOverall {
		s.logger.Warn("overall health changed", zap.String("from", string(s.lastOverall)), zap.String("to", string(overall)))
		s.lastOverall = overall
	}
	for _, report := range s.guard.Health().Report() {
		if prev, ok := s.lastClass[report.Class]; !ok || prev != report.Status {
			s.logger.Info("class health sample",
				zap.String("class", report.Class),
				zap.String("status", string(report.Status)),
				zap.Float64("error_rate", report.RollingErrRate),
				zap.String("breaker_state", string(report.BreakerState)),
			)
			s.lastClass[report.Class] = report.Status
		}
	}
}
