package graph

import (
	"fmt"

	"github.com/mvaleed/acs/internal/domain"
)

// linkLocked wires childID as a child of parentID on both sides of the
// Base neighbor sets. Callers hold g.mu.
func (g *Graph) linkLocked(parentID, childID int64) {
	parent, _ := g.getEntityLocked(parentID)
	child, _ := g.getEntityLocked(childID)
	parent.Core().AddChild(childID)
	child.Core().AddParent(parentID)
}

func (g *Graph) unlinkLocked(parentID, childID int64) {
	parent, err := g.getEntityLocked(parentID)
	if err == nil {
		parent.Core().RemoveChild(childID)
	}
	child, err := g.getEntityLocked(childID)
	if err == nil {
		child.Core().RemoveParent(parentID)
	}
}

// link validates the (child, parent) kind pair against domain.LegalEdge,
// checks for an existing duplicate edge, and — for group→group edges
// only — runs the acyclicity check (spec §3 invariant 2: "Only group→group
// edges are checked for cycles; the other three edge kinds cannot create
// one because users and roles are never parents").
func (g *Graph) link(childID, parentID int64, want domain.EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	child, err := g.getEntityLocked(childID)
	if err != nil {
		return err
	}
	parent, err := g.getEntityLocked(parentID)
	if err != nil {
		return err
	}

	kind, ok := domain.LegalEdge(child.EntityKind(), parent.EntityKind())
	if !ok || kind != want {
		return fmt.Errorf("%w: %s cannot parent %s", domain.ErrInvalidArgument, parent.EntityKind(), child.EntityKind())
	}

	if child.Core().HasParent(parentID) {
		return domain.ErrAlreadyExists
	}

	if kind == domain.EdgeGroupGroup {
		if g.wouldCreateCycleLocked(childID, parentID) {
			return domain.ErrWouldCreateCycle
		}
	}

	g.linkLocked(parentID, childID)
	return nil
}

func (g *Graph) unlink(childID, parentID int64, want domain.EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	child, err := g.getEntityLocked(childID)
	if err != nil {
		return err
	}
	parent, err := g.getEntityLocked(parentID)
	if err != nil {
		return err
	}
	if kind, ok := domain.LegalEdge(child.EntityKind(), parent.EntityKind()); !ok || kind != want {
		return fmt.Errorf("%w: not a %s edge", domain.ErrInvalidArgument, want)
	}
	if !child.Core().HasParent(parentID) {
		return domain.ErrNotFound
	}
	g.unlinkLocked(parentID, childID)
	return nil
}

// wouldCreateCycleLocked reports whether adding parentID as a parent of
// childID would create a cycle in the group→group subgraph, via BFS from
// the candidate parent upward: if childID is reachable by walking parent
// edges starting at parentID, the new edge would close a cycle.
func (g *Graph) wouldCreateCycleLocked(childID, parentID int64) bool {
	if childID == parentID {
		return true
	}
	visited := map[int64]struct{}{parentID: {}}
	queue := []int64{parentID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == childID {
			return true
		}
		grp, ok := g.groups[cur]
		if !ok {
			continue
		}
		for _, ancestorID := range grp.ParentIDs() {
			if _, seen := visited[ancestorID]; seen {
				continue
			}
			visited[ancestorID] = struct{}{}
			queue = append(queue, ancestorID)
		}
	}
	return false
}

func (g *Graph) AddUserToGroup(userID, groupID int64) error {
	return g.link(userID, groupID, domain.EdgeUserGroup)
}

func (g *Graph) RemoveUserFromGroup(userID, groupID int64) error {
	return g.unlink(userID, groupID, domain.EdgeUserGroup)
}

func (g *Graph) AssignUserToRole(userID, roleID int64) error {
	return g.link(userID, roleID, domain.EdgeUserRole)
}

func (g *Graph) UnassignUserFromRole(userID, roleID int64) error {
	return g.unlink(userID, roleID, domain.EdgeUserRole)
}

func (g *Graph) AddRoleToGroup(roleID, groupID int64) error {
	return g.link(roleID, groupID, domain.EdgeRoleGroup)
}

func (g *Graph) RemoveRoleFromGroup(roleID, groupID int64) error {
	return g.unlink(roleID, groupID, domain.EdgeRoleGroup)
}

// AddGroupToGroup makes groupID a child of parentID, rejecting the edge
// with ErrWouldCreateCycle if parentID is already a descendant of groupID.
func (g *Graph) AddGroupToGroup(groupID, parentID int64) error {
	return g.link(groupID, parentID, domain.EdgeGroupGroup)
}

func (g *Graph) RemoveGroupFromGroup(groupID, parentID int64) error {
	return g.unlink(groupID, parentID, domain.EdgeGroupGroup)
}

// AddPermission attaches p directly to entityID, rejecting a duplicate
// (uri, verb, scheme) key with ErrConflict (invariant 4). If p.ID is
// unset (the common case: callers supply uri/verb/grant/deny, not an
// id), the graph assigns the next permission id so that MOST_RECENT
// conflict resolution and persistence's primary key both have a stable,
// unique value to work with; a caller-supplied nonzero ID (e.g.
// hydration replaying a previously assigned one) is honored as-is.
func (g *Graph) AddPermission(entityID int64, p domain.Permission) (domain.Permission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ent, err := g.getEntityLocked(entityID)
	if err != nil {
		return domain.Permission{}, err
	}
	if p.ID == 0 {
		p.ID = g.allocPermID()
	} else {
		g.reservePermID(p.ID)
	}
	if err := ent.Core().PutPermission(p); err != nil {
		return domain.Permission{}, err
	}
	return p, nil
}

// RemovePermission detaches the permission matching key from entityID.
func (g *Graph) RemovePermission(entityID int64, key domain.PermKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ent, err := g.getEntityLocked(entityID)
	if err != nil {
		return err
	}
	if !ent.Core().RemovePermission(key) {
		return domain.ErrNotFound
	}
	return nil
}

// Ancestors returns every entity reachable by following parent edges from
// root (root excluded), the walk the evaluator uses to collect inherited
// permissions (spec §4.B).
func (g *Graph) Ancestors(root int64) []domain.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[int64]struct{}{root: {}}
	queue := []int64{root}
	var out []domain.Entity
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ent, err := g.getEntityLocked(cur)
		if err != nil {
			continue
		}
		for _, parentID := range ent.Core().ParentIDs() {
			if _, seen := visited[parentID]; seen {
				continue
			}
			visited[parentID] = struct{}{}
			parent, err := g.getEntityLocked(parentID)
			if err != nil {
				continue
			}
			out = append(out, parent)
			queue = append(queue, parentID)
		}
	}
	return out
}
