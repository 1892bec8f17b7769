package dispatch

import "github.com/mvaleed/acs/internal/domain"

// MutationKind classifies what changed in the graph, for the benefit of
// whatever Persister is wired in (spec §4.D: "the minimal set of store
// operations to reflect the mutation").
type MutationKind int

const (
	MutationCreateEntity MutationKind = iota + 1
	MutationUpdateEntity
	MutationDeleteEntity
	MutationLinkEdge
	MutationUnlinkEdge
	MutationAddPermission
	MutationRemovePermission
)

// EdgeMutation describes a single link/unlink.
type EdgeMutation struct {
	ChildID  int64
	ParentID int64
	EdgeKind domain.EdgeKind
}

// Mutation is the accepted-mutation record the dispatcher hands to the
// Persistence Coordinator after applying a command to the graph. It
// carries everything the coordinator needs to replay the change into
// durable storage without reaching back into the graph (which the
// coordinator must never touch directly, to preserve the single-writer
// invariant).
type Mutation struct {
	Kind          MutationKind
	CommandKind   Kind
	CorrelationID string

	EntityID   int64
	EntityKind domain.Kind
	Entity     domain.Entity // set for Create/Update

	Edge *EdgeMutation

	Permission    *domain.Permission
	PermissionKey *domain.PermKey
}

// Persister accepts accepted mutations for asynchronous, write-behind
// durability (spec §4.D). Persist must not block the caller on I/O; an
// implementation that needs to serialize or retry does so internally
// (see internal/persistence.Coordinator).
type Persister interface {
	Persist(m Mutation)
}

// noopPersister is used when the dispatcher is constructed without a
// Persister (tests, or a deployment that genuinely wants in-memory-only
// semantics).
type noopPersister struct{}

func (noopPersister) Persist(Mutation) {}
