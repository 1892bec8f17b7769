package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/graph"
	"github.com/mvaleed/acs/internal/persistence"
)

// entityAttrs mirrors the JSON shape json.Marshal produces for
// *domain.User/*domain.Group/*domain.Role (field names encode verbatim;
// Base.Permissions is tagged json:"-" and is saved as permission rows
// instead); this is the inverse of Tx.SaveEntity's json.Marshal(attrs) call.
type entityAttrs struct {
	Name                string
	Description         string
	Email               string
	PasswordHash        string
	Salt                string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LoadSnapshot implements persistence.Port: it reads entity, edge, and
// permission rows in dependency order (spec §3 "Hydration... loads all
// entities and edges from the store in dependency order") and returns
// them ordered by entity id (spec §6: "totally ordered by entity id").
func (s *Store) LoadSnapshot(ctx context.Context) (graph.Snapshot, error) {
	var snap graph.Snapshot

	rows, err := s.pool.Query(ctx, `SELECT id, kind, attrs_json FROM entity ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("loading entities: %w", mapError(err))
	}
	for rows.Next() {
		var id int64
		var kindStr string
		var raw []byte
		if err := rows.Scan(&id, &kindStr, &raw); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scanning entity row: %w", err)
		}
		var attrs entityAttrs
		if err := json.Unmarshal(raw, &attrs); err != nil {
			rows.Close()
			return snap, fmt.Errorf("decoding attrs for entity %d: %w", id, err)
		}
		kind, err := domain.ParseKind(kindStr)
		if err != nil {
			rows.Close()
			return snap, fmt.Errorf("entity %d: %w", id, err)
		}
		snap.Entities = append(snap.Entities, graph.EntityRecord{
			ID: id, Kind: kind, Name: attrs.Name, Description: attrs.Description,
			Email: attrs.Email, PasswordHash: attrs.PasswordHash, Salt: attrs.Salt,
			FailedLoginAttempts: attrs.FailedLoginAttempts,
			LockedUntil:         attrs.LockedUntil, LastLoginAt: attrs.LastLoginAt,
			IsActive:  attrs.IsActive,
			CreatedAt: attrs.CreatedAt, UpdatedAt: attrs.UpdatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, fmt.Errorf("iterating entities: %w", err)
	}
	rows.Close()

	edgeRows, err := s.pool.Query(ctx, `SELECT parent_id, child_id, kind FROM edge ORDER BY parent_id, child_id`)
	if err != nil {
		return snap, fmt.Errorf("loading edges: %w", mapError(err))
	}
	for edgeRows.Next() {
		var parentID, childID int64
		var kindStr string
		if err := edgeRows.Scan(&parentID, &childID, &kindStr); err != nil {
			edgeRows.Close()
			return snap, fmt.Errorf("scanning edge row: %w", err)
		}
		snap.Edges = append(snap.Edges, graph.EdgeRecord{ParentID: parentID, ChildID: childID, Kind: domain.EdgeKind(kindStr)})
	}
	if err := edgeRows.Err(); err != nil {
		edgeRows.Close()
		return snap, fmt.Errorf("iterating edges: %w", err)
	}
	edgeRows.Close()

	permRows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, uri, verb, grant_flag, deny_flag, scheme, priority, valid_from, valid_until
		FROM permission ORDER BY entity_id, id`)
	if err != nil {
		return snap, fmt.Errorf("loading permissions: %w", mapError(err))
	}
	for permRows.Next() {
		var p domain.Permission
		var entityID int64
		var verb string
		if err := permRows.Scan(&p.ID, &entityID, &p.URI, &verb, &p.Grant, &p.Deny, &p.Scheme, &p.Priority, &p.ValidFrom, &p.ValidUntil); err != nil {
			permRows.Close()
			return snap, fmt.Errorf("scanning permission row: %w", err)
		}
		p.Verb = domain.Verb(verb)
		snap.Permissions = append(snap.Permissions, graph.PermissionRecord{EntityID: entityID, Permission: p})
	}
	if err := permRows.Err(); err != nil {
		permRows.Close()
		return snap, fmt.Errorf("iterating permissions: %w", err)
	}
	permRows.Close()

	return snap, nil
}

var _ persistence.Port = (*Store)(nil)
