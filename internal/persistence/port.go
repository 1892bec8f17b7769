// Package persistence implements the Persistence Coordinator (spec
// §4.D): it sits behind the Command Dispatcher as a dispatch.Persister,
// turns accepted mutations into durable transactions through a narrow
// port, and owns the dead-letter queue for failures.
package persistence

import (
	"context"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/graph"
)

// Tx is one durable transaction, opened by Port.BeginTransaction and
// closed by exactly one of Commit or Rollback.
type Tx interface {
	SaveEntity(ctx context.Context, kind domain.Kind, id int64, attrs any) error
	SaveEdge(ctx context.Context, parentID, childID int64, kind domain.EdgeKind) error
	SavePermission(ctx context.Context, entityID int64, p domain.Permission) error
	DeleteEntity(ctx context.Context, id int64) error
	DeleteEdge(ctx context.Context, parentID, childID int64) error
	DeletePermission(ctx context.Context, entityID int64, key domain.PermKey) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Port is the persistence abstraction the coordinator depends on (spec
// §6: "any store may implement"). LoadSnapshot's result is totally
// ordered by entity id, per spec.
type Port interface {
	BeginTransaction(ctx context.Context) (Tx, error)
	LoadSnapshot(ctx context.Context) (graph.Snapshot, error)
}
