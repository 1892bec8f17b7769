package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/domain"
)

// fakeTx records every call it sees in order; fakePort hands one out per
// BeginTransaction and shares the same order slice across transactions so
// the test can assert cross-transaction ordering.
type fakeTx struct {
	port *fakePort
}

func (t *fakeTx) SaveEntity(ctx context.Context, kind domain.Kind, id int64, attrs any) error {
	t.port.record(id, attrs)
	return nil
}
func (t *fakeTx) SaveEdge(ctx context.Context, parentID, childID int64, kind domain.EdgeKind) error {
	return nil
}
func (t *fakeTx) SavePermission(ctx context.Context, entityID int64, p domain.Permission) error {
	return nil
}
func (t *fakeTx) DeleteEntity(ctx context.Context, id int64) error { return nil }
func (t *fakeTx) DeleteEdge(ctx context.Context, parentID, childID int64) error { return nil }
func (t *fakeTx) DeletePermission(ctx context.Context, entityID int64, key domain.PermKey) error {
	return nil
}
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakePort struct {
	mu    sync.Mutex
	order []int64
	seeds []int64 // ID of each saved *domain.User, in save order
}

func (p *fakePort) record(id int64, attrs any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, id)
	if u, ok := attrs.(*domain.User); ok {
		p.seeds = append(p.seeds, u.ID)
	}
}

func (p *fakePort) BeginTransaction(ctx context.Context) (Tx, error) {
	return &fakeTx{port: p}, nil
}

func TestCoordinator_PersistsSameEntityInSubmissionOrder(t *testing.T) {
	port := &fakePort{}
	dlq := NewDeadLetterQueue(nil)
	coord := NewCoordinator(port, dlq)

	const n = 50
	for i := 0; i < n; i++ {
		// Persist is called from what would be the single dispatcher
		// goroutine in production; submitting sequentially here models
		// that, while still exercising the coordinator's internal
		// goroutine-per-entity drain loop.
		coord.Persist(dispatch.Mutation{
			Kind: dispatch.MutationUpdateEntity, EntityID: 1, EntityKind: domain.KindUserEntity,
			Entity: mustUser(i),
		})
	}

	require.Eventually(t, func() bool {
		port.mu.Lock()
		defer port.mu.Unlock()
		return len(port.order) == n
	}, time.Second, time.Millisecond)

	port.mu.Lock()
	defer port.mu.Unlock()
	for i, id := range port.order {
		assert.Equal(t, int64(1), id, "entity id recorded at position %d", i)
		assert.Equal(t, int64(i), port.seeds[i], "mutation saved at position %d", i)
	}
}

func TestCoordinator_DifferentEntitiesAllEventuallyPersist(t *testing.T) {
	port := &fakePort{}
	dlq := NewDeadLetterQueue(nil)
	coord := NewCoordinator(port, dlq)

	for id := int64(1); id <= 10; id++ {
		coord.Persist(dispatch.Mutation{Kind: dispatch.MutationCreateEntity, EntityID: id, EntityKind: domain.KindUserEntity, Entity: mustUser(int(id))})
	}

	require.Eventually(t, func() bool {
		port.mu.Lock()
		defer port.mu.Unlock()
		return len(port.order) == 10
	}, time.Second, time.Millisecond)
}

func mustUser(seed int) *domain.User {
	u, err := domain.NewUser(int64(seed), domain.UserAttrs{Name: "u"})
	if err != nil {
		panic(err)
	}
	return u
}
