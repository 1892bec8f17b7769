package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/obs"
)

// entityQueue serializes every mutation for one entity id (spec §4.D
// ordering guarantee), while different entities' queues drain
// concurrently on their own lazily-spawned goroutine.
type entityQueue struct {
	mu      sync.Mutex
	pending []dispatch.Mutation
	active  bool
}

// Coordinator is the Persistence Coordinator (spec §4.D). It implements
// dispatch.Persister: Persist never blocks its caller on I/O.
type Coordinator struct {
	port   Port
	guard  Guard
	dlq    *DeadLetterQueue
	logger *obs.Logger

	mu     sync.Mutex
	queues map[int64]*entityQueue

	opTimeout time.Duration
}

type Option func(*Coordinator)

func WithGuard(g Guard) Option           { return func(c *Coordinator) { c.guard = g } }
func WithLogger(l *obs.Logger) Option    { return func(c *Coordinator) { c.logger = l } }
func WithOpTimeout(d time.Duration) Option { return func(c *Coordinator) { c.opTimeout = d } }

func NewCoordinator(port Port, dlq *DeadLetterQueue, opts ...Option) *Coordinator {
	c := &Coordinator{
		port:      port,
		guard:     noopGuard{},
		logger:    obs.NewNop(),
		dlq:       dlq,
		queues:    make(map[int64]*entityQueue),
		opTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Persist enqueues m onto its entity's serial queue and returns
// immediately; durability happens write-behind (spec §5).
func (c *Coordinator) Persist(m dispatch.Mutation) {
	eq := c.queueFor(m.EntityID)

	eq.mu.Lock()
	eq.pending = append(eq.pending, m)
	if eq.active {
		eq.mu.Unlock()
		return
	}
	eq.active = true
	eq.mu.Unlock()

	go c.drain(m.EntityID, eq)
}

func (c *Coordinator) queueFor(entityID int64) *entityQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	eq, ok := c.queues[entityID]
	if !ok {
		eq = &entityQueue{}
		c.queues[entityID] = eq
	}
	return eq
}

func (c *Coordinator) drain(entityID int64, eq *entityQueue) {
	for {
		eq.mu.Lock()
		if len(eq.pending) == 0 {
			eq.active = false
			eq.mu.Unlock()
			return
		}
		m := eq.pending[0]
		eq.pending = eq.pending[1:]
		eq.mu.Unlock()

		c.apply(m)
	}
}

func (c *Coordinator) apply(m dispatch.Mutation) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	err := c.guard.Execute(ctx, ClassDatabase, func(ctx context.Context) error {
		return c.applyOnce(ctx, m)
	})
	if err == nil {
		return
	}

	c.logger.Warn("persistence operation failed, enqueuing dead-letter",
		zap.String("mutation_kind", mutationKindName(m.Kind)),
		zap.Int64("entity_id", m.EntityID),
		zap.String("correlation_id", m.CorrelationID),
		zap.Error(err),
	)
	c.dlq.Enqueue(m, err)
}

// RetryMutation re-applies m through the same guarded path as a
// first-attempt persist. It is the retryFn the DeadLetterQueue's
// background worker calls.
func (c *Coordinator) RetryMutation(ctx context.Context, m dispatch.Mutation) error {
	return c.guard.Execute(ctx, ClassDatabase, func(ctx context.Context) error {
		return c.applyOnce(ctx, m)
	})
}

func (c *Coordinator) applyOnce(ctx context.Context, m dispatch.Mutation) error {
	tx, err := c.port.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	if err := applyMutation(ctx, tx, m); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

func applyMutation(ctx context.Context, tx Tx, m dispatch.Mutation) error {
	switch m.Kind {
	case dispatch.MutationCreateEntity, dispatch.MutationUpdateEntity:
		return tx.SaveEntity(ctx, m.EntityKind, m.EntityID, m.Entity)
	case dispatch.MutationDeleteEntity:
		return tx.DeleteEntity(ctx, m.EntityID)
	case dispatch.MutationLinkEdge:
		return tx.SaveEdge(ctx, m.Edge.ParentID, m.Edge.ChildID, m.Edge.EdgeKind)
	case dispatch.MutationUnlinkEdge:
		return tx.DeleteEdge(ctx, m.Edge.ParentID, m.Edge.ChildID)
	case dispatch.MutationAddPermission:
		return tx.SavePermission(ctx, m.EntityID, *m.Permission)
	case dispatch.MutationRemovePermission:
		return tx.DeletePermission(ctx, m.EntityID, *m.PermissionKey)
	default:
		return domain.ErrNotSupported
	}
}

func mutationKindName(k dispatch.MutationKind) string {
	switch k {
	case dispatch.MutationCreateEntity:
		return "create_entity"
	case dispatch.MutationUpdateEntity:
		return "update_entity"
	case dispatch.MutationDeleteEntity:
		return "delete_entity"
	case dispatch.MutationLinkEdge:
		return "link_edge"
	case dispatch.MutationUnlinkEdge:
		return "unlink_edge"
	case dispatch.MutationAddPermission:
		return "add_permission"
	case dispatch.MutationRemovePermission:
		return "remove_permission"
	default:
		return "unknown"
	}
}
