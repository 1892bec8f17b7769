// Package dispatch implements the Command Dispatcher (spec §4.C): a
// bounded FIFO command queue drained by a single consumer goroutine,
// which is the sole reader/writer of the entity graph's structural state
// (spec §5, "sequential core").
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/eval"
	"github.com/mvaleed/acs/internal/event"
	"github.com/mvaleed/acs/internal/obs"
)

const DefaultQueueCapacity = 1000

// Dispatcher owns the command queue and the single consumer goroutine
// that applies commands to the graph.
type Dispatcher struct {
	graph     graphPort
	evaluator evaluatorPort
	persister Persister
	events    event.Publisher
	logger    *obs.Logger

	queue chan *Command

	mu         sync.Mutex
	shutdown   bool
	consumerWG sync.WaitGroup
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

func WithPersister(p Persister) Option {
	return func(d *Dispatcher) { d.persister = p }
}

func WithEvents(p event.Publisher) Option {
	return func(d *Dispatcher) { d.events = p }
}

func WithLogger(l *obs.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithQueueCapacity(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *Command, n)
		}
	}
}

// New constructs a Dispatcher and starts its consumer goroutine. Callers
// must call Shutdown to stop it.
func New(g graphPort, evaluator evaluatorPort, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		graph:     g,
		evaluator: evaluator,
		persister: noopPersister{},
		events:    event.NewNoopPublisher(),
		logger:    obs.NewNop(),
		queue:     make(chan *Command, DefaultQueueCapacity),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.consumerWG.Add(1)
	go d.run()
	return d
}

// Submit enqueues a command and blocks until it completes, is canceled,
// or the dispatcher is shutting down. ctx governs cancellation: if it is
// already Done when the command is dequeued, the command is dropped with
// ErrCanceled without being applied (spec §4.C); once dequeued,
// cancellation is advisory only.
func (d *Dispatcher) Submit(ctx context.Context, kind Kind, params any) (any, error) {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return nil, domain.ErrShuttingDown
	}
	d.mu.Unlock()

	if kind.isMutation() && !d.graph.Ready() {
		return nil, fmt.Errorf("%w: graph not yet hydrated", domain.ErrInvalidArgument)
	}

	cmd := &Command{
		Kind:          kind,
		Params:        params,
		CorrelationID: newCorrelationID(),
		ctx:           ctx,
		result:        make(chan Result, 1),
	}

	select {
	case d.queue <- cmd:
	case <-ctx.Done():
		return nil, domain.ErrCanceled
	}

	select {
	case res := <-cmd.result:
		return res.Value, res.Err
	case <-ctx.Done():
		// The command may already be running or queued; either way the
		// caller is no longer waiting, but per spec cancellation after
		// dequeue is advisory only, so we still drain the result to avoid
		// leaking the goroutine that will eventually send on cmd.result.
		go func() { <-cmd.result }()
		return nil, domain.ErrCanceled
	}
}

func (d *Dispatcher) run() {
	defer d.consumerWG.Done()
	for cmd := range d.queue {
		if cmd.ctx.Err() != nil {
			cmd.result <- Result{Err: domain.ErrCanceled}
			continue
		}
		cmd.result <- d.safeHandle(cmd)
	}
}

func (d *Dispatcher) safeHandle(cmd *Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command handler panicked",
				zap.String("kind", cmd.Kind.String()),
				zap.String("correlation_id", cmd.CorrelationID),
				zap.Any("panic", r),
			)
			res = Result{Err: domain.NewCommandError(cmd.CorrelationID, fmt.Errorf("%w: handler panic: %v", domain.ErrInternal, r))}
		}
	}()
	return d.handle(cmd)
}

// Shutdown stops accepting new submissions, waits up to timeout for the
// in-flight and already-queued commands to drain, then returns. Commands
// still unprocessed after timeout are abandoned (spec §4.C: "waits up to
// a configured timeout... then forcibly terminates").
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return nil
	}
	d.shutdown = true
	d.mu.Unlock()

	close(d.queue)

	done := make(chan struct{})
	go func() {
		d.consumerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("dispatcher shutdown timed out, consumer did not drain in time")
	}
}
