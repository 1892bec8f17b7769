package persistence

import "context"

// Guard is the resilience wrapper the coordinator runs every store call
// through (spec §4.E: circuit breaker + retry, applied per operation
// class). It is declared here rather than imported from
// internal/resilience so persistence stays buildable without it; a
// Coordinator built without WithGuard uses noopGuard, which runs fn
// unwrapped.
type Guard interface {
	Execute(ctx context.Context, class string, fn func(ctx context.Context) error) error
}

type noopGuard struct{}

func (noopGuard) Execute(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const ClassDatabase = "database"
