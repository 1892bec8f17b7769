package graph

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/domain"
)

// EntityRecord is the persistence-agnostic representation of one row of
// the entity table, as loaded by the Persistence Coordinator at startup.
type EntityRecord struct {
	ID          int64
	Kind        domain.Kind
	Name        string
	Description string // groups, roles
	Email       string // users only

	PasswordHash        string
	Salt                string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	IsActive            bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EdgeRecord is one row of the edge table: childID takes parentID as a
// parent, of the given kind (spec §3 "Edges are typed").
type EdgeRecord struct {
	ParentID int64
	ChildID  int64
	Kind     domain.EdgeKind
}

// PermissionRecord is one row of the permission table, attached directly
// to EntityID.
type PermissionRecord struct {
	EntityID   int64
	Permission domain.Permission
}

// Snapshot is the full durable state the Persistence Coordinator reads at
// startup and replays into a fresh Graph via Hydrate.
type Snapshot struct {
	Entities    []EntityRecord
	Edges       []EdgeRecord
	Permissions []PermissionRecord
}

// Hydrate replays snap into g. It is one-shot and non-incremental (spec
// §4.A): it must run before the dispatcher accepts its first mutation
// command, and calling it twice on an already-ready Graph is a caller
// error since entity ids would collide with the allocator state already
// advanced past them.
func (g *Graph) Hydrate(snap Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready.Load() {
		return fmt.Errorf("%w: graph already hydrated", domain.ErrInvalidArgument)
	}

	for _, rec := range snap.Entities {
		if err := g.hydrateEntityLocked(rec); err != nil {
			return fmt.Errorf("hydrate entity %d: %w", rec.ID, err)
		}
		g.reserveID(rec.ID)
	}

	for _, e := range snap.Edges {
		child, err := g.getEntityLocked(e.ChildID)
		if err != nil {
			return fmt.Errorf("hydrate edge %d->%d: child: %w", e.ChildID, e.ParentID, err)
		}
		parent, err := g.getEntityLocked(e.ParentID)
		if err != nil {
			return fmt.Errorf("hydrate edge %d->%d: parent: %w", e.ChildID, e.ParentID, err)
		}
		if kind, ok := domain.LegalEdge(child.EntityKind(), parent.EntityKind()); !ok || kind != e.Kind {
			return fmt.Errorf("%w: illegal edge %d->%d", domain.ErrInvalidArgument, e.ChildID, e.ParentID)
		}
		g.linkLocked(e.ParentID, e.ChildID)
	}

	for _, p := range snap.Permissions {
		ent, err := g.getEntityLocked(p.EntityID)
		if err != nil {
			return fmt.Errorf("hydrate permission on %d: %w", p.EntityID, err)
		}
		if err := ent.Core().PutPermission(p.Permission); err != nil {
			return fmt.Errorf("hydrate permission on %d: %w", p.EntityID, err)
		}
		g.reservePermID(p.Permission.ID)
	}

	g.markReady()
	g.logger.Info("graph hydrated",
		zap.Int("entities", len(snap.Entities)),
		zap.Int("edges", len(snap.Edges)),
		zap.Int("permissions", len(snap.Permissions)),
	)
	return nil
}

func (g *Graph) hydrateEntityLocked(rec EntityRecord) error {
	switch rec.Kind {
	case domain.KindUserEntity:
		u := &domain.User{
			Base:                domain.NewBase(rec.ID),
			Name:                rec.Name,
			Email:               rec.Email,
			PasswordHash:        rec.PasswordHash,
			Salt:                rec.Salt,
			FailedLoginAttempts: rec.FailedLoginAttempts,
			LockedUntil:         rec.LockedUntil,
			LastLoginAt:         rec.LastLoginAt,
			IsActive:            rec.IsActive,
			CreatedAt:           rec.CreatedAt,
			UpdatedAt:           rec.UpdatedAt,
		}
		if _, exists := g.users[u.ID]; exists {
			return domain.ErrAlreadyExists
		}
		g.users[u.ID] = u
		if u.Email != "" {
			g.emailIndex[u.Email] = u.ID
		}
	case domain.KindGroupEntity:
		grp := &domain.Group{
			Base:        domain.NewBase(rec.ID),
			Name:        rec.Name,
			Description: rec.Description,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		}
		if _, exists := g.groups[grp.ID]; exists {
			return domain.ErrAlreadyExists
		}
		g.groups[grp.ID] = grp
	case domain.KindRoleEntity:
		r := &domain.Role{
			Base:        domain.NewBase(rec.ID),
			Name:        rec.Name,
			Description: rec.Description,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		}
		if _, exists := g.roles[r.ID]; exists {
			return domain.ErrAlreadyExists
		}
		g.roles[r.ID] = r
	default:
		return fmt.Errorf("%w: unknown entity kind %d", domain.ErrInvalidArgument, rec.Kind)
	}
	return nil
}

// Snapshot produces a point-in-time Snapshot of the current graph state
// in the form Hydrate accepts.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var snap Snapshot
	for _, u := range g.users {
		snap.Entities = append(snap.Entities, EntityRecord{
			ID: u.ID, Kind: domain.KindUserEntity, Name: u.Name, Email: u.Email,
			PasswordHash: u.PasswordHash, Salt: u.Salt, FailedLoginAttempts: u.FailedLoginAttempts,
			LockedUntil: u.LockedUntil, LastLoginAt: u.LastLoginAt, IsActive: u.IsActive,
			CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
		})
		snap.Permissions = append(snap.Permissions, permissionRecords(u.ID, u.PermissionList())...)
		snap.Edges = append(snap.Edges, parentEdges(u.ID, u.ParentIDs(), domain.KindUserEntity, g)...)
	}
	for _, grp := range g.groups {
		snap.Entities = append(snap.Entities, EntityRecord{
			ID: grp.ID, Kind: domain.KindGroupEntity, Name: grp.Name, Description: grp.Description,
			CreatedAt: grp.CreatedAt, UpdatedAt: grp.UpdatedAt,
		})
		snap.Permissions = append(snap.Permissions, permissionRecords(grp.ID, grp.PermissionList())...)
		snap.Edges = append(snap.Edges, parentEdges(grp.ID, grp.ParentIDs(), domain.KindGroupEntity, g)...)
	}
	for _, r := range g.roles {
		snap.Entities = append(snap.Entities, EntityRecord{
			ID: r.ID, Kind: domain.KindRoleEntity, Name: r.Name, Description: r.Description,
			CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
		snap.Permissions = append(snap.Permissions, permissionRecords(r.ID, r.PermissionList())...)
		snap.Edges = append(snap.Edges, parentEdges(r.ID, r.ParentIDs(), domain.KindRoleEntity, g)...)
	}
	return snap
}

func permissionRecords(entityID int64, perms []domain.Permission) []PermissionRecord {
	recs := make([]PermissionRecord, 0, len(perms))
	for _, p := range perms {
		recs = append(recs, PermissionRecord{EntityID: entityID, Permission: p})
	}
	return recs
}

func parentEdges(childID int64, parentIDs []int64, childKind domain.Kind, g *Graph) []EdgeRecord {
	edges := make([]EdgeRecord, 0, len(parentIDs))
	for _, parentID := range parentIDs {
		parent, err := g.getEntityLocked(parentID)
		if err != nil {
			continue
		}
		kind, _ := domain.LegalEdge(childKind, parent.EntityKind())
		edges = append(edges, EdgeRecord{ParentID: parentID, ChildID: childID, Kind: kind})
	}
	return edges
}
