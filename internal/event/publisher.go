// Package event provides event publishing abstractions for the domain
// events the Command Dispatcher emits after each accepted mutation.
//
// This follows the Open/Closed principle: the code is open for extension
// (add new message broker implementations) but closed for modification
// (callers depend on Publisher, never a concrete broker).
//
// Only a logging publisher is implemented, matching spec §1's framing of
// message brokers as out-of-core plumbing. When a real broker is needed,
// add a new file implementing Publisher and wire it in cmd/server/main.go
// based on configuration.
package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/obs"
)

// Publisher is the interface for publishing domain events. Implementations
// can be swapped without changing dispatcher logic.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishBatch(ctx context.Context, events []Event) error
	Close() error
}

// LoggingPublisher implements Publisher by logging events through the
// shared obs.Logger port. Use this until a real broker is wired in.
type LoggingPublisher struct {
	logger *obs.Logger
}

func NewLoggingPublisher(logger *obs.Logger) *LoggingPublisher {
	if logger == nil {
		logger = obs.NewNop()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.Info("event published",
		zap.String("type", string(e.Type)),
		zap.Int64("entity_id", e.EntityID),
		zap.String("correlation_id", e.CorrelationID),
		zap.Any("data", e.Data),
	)
	return nil
}

func (p *LoggingPublisher) PublishBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *LoggingPublisher) Close() error { return nil }

// NoopPublisher discards every event, for tests or deployments with
// publishing disabled.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (p *NoopPublisher) Publish(context.Context, Event) error        { return nil }
func (p *NoopPublisher) PublishBatch(context.Context, []Event) error { return nil }
func (p *NoopPublisher) Close() error                                { return nil }
