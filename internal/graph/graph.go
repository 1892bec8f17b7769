// Package graph implements the in-memory entity graph (spec §4.A): keyed
// collections of users, groups, and roles, the mutator primitives the
// Command Dispatcher applies to them, and hydration from a persistence
// snapshot.
//
// Graph is driven by the single dispatcher consumer (spec §5's
// "sequential core"). Every method takes the RWMutex it holds, so each
// single call is safe from any goroutine, and the `ready` flag is an
// atomic; the mutex does not make a sequence of calls atomic, which is
// what the single-writer invariant provides.
package graph

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/obs"
)

// Graph owns every User, Group, and Role in the system.
type Graph struct {
	mu sync.RWMutex

	users  map[int64]*domain.User
	groups map[int64]*domain.Group
	roles  map[int64]*domain.Role

	emailIndex map[string]int64 // lowercase email -> user id, invariant 6

	nextID       atomic.Int64
	nextPermID   atomic.Int64
	ready        atomic.Bool

	logger *obs.Logger
}

func New(logger *obs.Logger) *Graph {
	if logger == nil {
		logger = obs.NewNop()
	}
	return &Graph{
		users:      make(map[int64]*domain.User),
		groups:     make(map[int64]*domain.Group),
		roles:      make(map[int64]*domain.Role),
		emailIndex: make(map[string]int64),
		logger:     logger,
	}
}

// Ready reports whether hydration has completed. The dispatcher refuses
// mutation commands until this is true (spec §4.A, §7 "Hydration failures
// are fatal at startup").
func (g *Graph) Ready() bool { return g.ready.Load() }

func (g *Graph) markReady() { g.ready.Store(true) }

func (g *Graph) allocID() int64 { return g.nextID.Add(1) }

// reserveID bumps the id allocator past id, used during hydration so
// freshly created entities never collide with hydrated ones.
func (g *Graph) reserveID(id int64) {
	for {
		cur := g.nextID.Load()
		if id <= cur {
			return
		}
		if g.nextID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// allocPermID assigns the next id in the permission table's own id space
// (spec §6's "permission(id, entity_id, ...)" is a separate table from
// entity, so permission ids are independent of entity ids).
func (g *Graph) allocPermID() int64 { return g.nextPermID.Add(1) }

// reservePermID bumps the permission id allocator past id, used during
// hydration so permissions created after startup never collide with
// hydrated ones.
func (g *Graph) reservePermID(id int64) {
	for {
		cur := g.nextPermID.Load()
		if id <= cur {
			return
		}
		if g.nextPermID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// --- lookups ---

func (g *Graph) GetUser(id int64) (*domain.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (g *Graph) GetGroup(id int64) (*domain.Group, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return grp, nil
}

func (g *Graph) GetRole(id int64) (*domain.Role, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.roles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// GetEntity resolves id across all three kinds, used by the generic
// GetEntity command and by the evaluator's ancestor walk.
func (g *Graph) GetEntity(id int64) (domain.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.getEntityLocked(id)
}

func (g *Graph) getEntityLocked(id int64) (domain.Entity, error) {
	if u, ok := g.users[id]; ok {
		return u, nil
	}
	if grp, ok := g.groups[id]; ok {
		return grp, nil
	}
	if r, ok := g.roles[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

// Descendants returns every id reachable from root by following children
// edges (root excluded), used by the evaluator to invalidate cache
// entries for an entity's entire subtree.
func (g *Graph) Descendants(root int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[int64]struct{}{root: {}}
	queue := []int64{root}
	var out []int64
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ent, err := g.getEntityLocked(cur)
		if err != nil {
			continue
		}
		for _, childID := range ent.Core().ChildIDs() {
			if _, seen := visited[childID]; seen {
				continue
			}
			visited[childID] = struct{}{}
			out = append(out, childID)
			queue = append(queue, childID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// --- entity CRUD ---

func (g *Graph) CreateUser(attrs domain.UserAttrs) (*domain.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if attrs.Email != "" {
		if _, exists := g.emailIndex[normalizeEmail(attrs.Email)]; exists {
			return nil, domain.ErrAlreadyExists
		}
	}

	u, err := domain.NewUser(g.allocID(), attrs)
	if err != nil {
		return nil, err
	}
	g.users[u.ID] = u
	if u.Email != "" {
		g.emailIndex[u.Email] = u.ID
	}
	g.logger.Debug("user created", zap.Int64("id", u.ID))
	return u, nil
}

// VerifyPassword checks password against the PasswordHash of the user
// registered under email using checker (the bcrypt comparator injected by
// the dispatcher, keeping this package free of a crypto dependency), and
// applies the failed-login lockout policy spec §3's credential-metadata
// fields exist to serve. It returns the user whenever email resolves to
// one — even when the check fails — so the caller can persist the updated
// lockout counters; err is domain.ErrUnauthorized for a bad or locked
// credential, domain.ErrNotFound when email matches no user.
func (g *Graph) VerifyPassword(email, password string, checker func(password, hash string) error, maxAttempts int, lockFor time.Duration) (*domain.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.emailIndex[normalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u := g.users[id]
	if u.IsLocked() {
		return u, domain.ErrUnauthorized
	}
	if err := checker(password, u.PasswordHash); err != nil {
		u.RegisterFailedLogin(maxAttempts, lockFor)
		return u, domain.ErrUnauthorized
	}
	u.ResetFailedLogins()
	return u, nil
}

func (g *Graph) CreateGroup(attrs domain.GroupAttrs) (*domain.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, err := domain.NewGroup(g.allocID(), attrs)
	if err != nil {
		return nil, err
	}
	g.groups[grp.ID] = grp
	g.logger.Debug("group created", zap.Int64("id", grp.ID))
	return grp, nil
}

func (g *Graph) CreateRole(attrs domain.RoleAttrs) (*domain.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, err := domain.NewRole(g.allocID(), attrs)
	if err != nil {
		return nil, err
	}
	g.roles[r.ID] = r
	g.logger.Debug("role created", zap.Int64("id", r.ID))
	return r, nil
}

func (g *Graph) UpdateUser(id int64, upd domain.UserUpdate) (*domain.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, ok := g.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	oldEmail := u.Email
	if upd.Email != nil {
		newEmail := normalizeEmail(*upd.Email)
		if newEmail != "" && newEmail != oldEmail {
			if _, exists := g.emailIndex[newEmail]; exists {
				return nil, domain.ErrAlreadyExists
			}
		}
	}

	if err := u.ApplyUpdate(upd); err != nil {
		return nil, err
	}

	if u.Email != oldEmail {
		delete(g.emailIndex, oldEmail)
		if u.Email != "" {
			g.emailIndex[u.Email] = u.ID
		}
	}
	return u, nil
}

func (g *Graph) UpdateGroup(id int64, upd domain.GroupUpdate) (*domain.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := grp.ApplyUpdate(upd); err != nil {
		return nil, err
	}
	return grp, nil
}

func (g *Graph) UpdateRole(id int64, upd domain.RoleUpdate) (*domain.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.roles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := r.ApplyUpdate(upd); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes every incident edge for id, then the entity itself
// (spec §3 Lifecycle).
func (g *Graph) Delete(id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ent, err := g.getEntityLocked(id)
	if err != nil {
		return err
	}
	core := ent.Core()

	for _, parentID := range core.ParentIDs() {
		g.unlinkLocked(parentID, id)
	}
	for _, childID := range core.ChildIDs() {
		g.unlinkLocked(id, childID)
	}

	switch ent.EntityKind() {
	case domain.KindUserEntity:
		u := ent.(*domain.User)
		delete(g.emailIndex, u.Email)
		delete(g.users, id)
	case domain.KindGroupEntity:
		delete(g.groups, id)
	case domain.KindRoleEntity:
		delete(g.roles, id)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
