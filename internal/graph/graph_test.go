package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/acs/internal/domain"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	return New(nil)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.CreateUser(domain.UserAttrs{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = g.CreateUser(domain.UserAttrs{Name: "Ada Two", Email: "Ada@Example.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func okChecker(password, hash string) error {
	if password == hash {
		return nil
	}
	return errors.New("mismatch")
}

func TestVerifyPassword_WrongPasswordLocksAfterThreshold(t *testing.T) {
	g := newTestGraph(t)
	u, err := g.CreateUser(domain.UserAttrs{Name: "Ada", Email: "ada@example.com", PasswordHash: "secret"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := g.VerifyPassword("ada@example.com", "wrong", okChecker, 3, time.Minute)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	}
	got, err := g.GetUser(u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailedLoginAttempts)
	assert.False(t, got.IsLocked())

	_, err = g.VerifyPassword("ada@example.com", "wrong", okChecker, 3, time.Minute)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err = g.GetUser(u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked())

	_, err = g.VerifyPassword("ada@example.com", "secret", okChecker, 3, time.Minute)
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "a locked account must reject even the correct password")
}

func TestVerifyPassword_CorrectPasswordResetsFailedAttempts(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.CreateUser(domain.UserAttrs{Name: "Ada", Email: "ada@example.com", PasswordHash: "secret"})
	require.NoError(t, err)

	_, err = g.VerifyPassword("ada@example.com", "wrong", okChecker, 5, time.Minute)
	require.Error(t, err)

	got, err := g.VerifyPassword("ada@example.com", "secret", okChecker, 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
}

func TestVerifyPassword_UnknownEmailNotFound(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.VerifyPassword("nobody@example.com", "x", okChecker, 5, time.Minute)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddUserToGroup_LegalEdge(t *testing.T) {
	g := newTestGraph(t)
	u, err := g.CreateUser(domain.UserAttrs{Name: "Ada"})
	require.NoError(t, err)
	grp, err := g.CreateGroup(domain.GroupAttrs{Name: "engineering"})
	require.NoError(t, err)

	require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))

	got, err := g.GetUser(u.ID)
	require.NoError(t, err)
	assert.True(t, got.HasParent(grp.ID))

	gotGroup, err := g.GetGroup(grp.ID)
	require.NoError(t, err)
	assert.True(t, gotGroup.HasChild(u.ID))
}

func TestAddUserToGroup_DuplicateEdge(t *testing.T) {
	g := newTestGraph(t)
	u, _ := g.CreateUser(domain.UserAttrs{Name: "Ada"})
	grp, _ := g.CreateGroup(domain.GroupAttrs{Name: "eng"})

	require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))
	err := g.AddUserToGroup(u.ID, grp.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestLegalEdge_RejectsIllegalPair(t *testing.T) {
	g := newTestGraph(t)
	grp, _ := g.CreateGroup(domain.GroupAttrs{Name: "eng"})
	role, _ := g.CreateRole(domain.RoleAttrs{Name: "admin"})

	// a role cannot parent a group: only role->group is legal, not group->role.
	err := g.link(grp.ID, role.ID, domain.EdgeGroupGroup)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAddGroupToGroup_CycleRejected(t *testing.T) {
	g := newTestGraph(t)
	a, _ := g.CreateGroup(domain.GroupAttrs{Name: "a"})
	b, _ := g.CreateGroup(domain.GroupAttrs{Name: "b"})
	c, _ := g.CreateGroup(domain.GroupAttrs{Name: "c"})

	require.NoError(t, g.AddGroupToGroup(b.ID, a.ID)) // b child of a
	require.NoError(t, g.AddGroupToGroup(c.ID, b.ID)) // c child of b

	// a -> c would close the cycle a -> c -> b -> a
	err := g.AddGroupToGroup(a.ID, c.ID)
	assert.ErrorIs(t, err, domain.ErrWouldCreateCycle)
}

func TestAddGroupToGroup_SelfParentRejected(t *testing.T) {
	g := newTestGraph(t)
	a, _ := g.CreateGroup(domain.GroupAttrs{Name: "a"})
	err := g.AddGroupToGroup(a.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrWouldCreateCycle)
}

func TestDescendants(t *testing.T) {
	g := newTestGraph(t)
	top, _ := g.CreateGroup(domain.GroupAttrs{Name: "top"})
	mid, _ := g.CreateGroup(domain.GroupAttrs{Name: "mid"})
	u, _ := g.CreateUser(domain.UserAttrs{Name: "Ada"})

	require.NoError(t, g.AddGroupToGroup(mid.ID, top.ID))
	require.NoError(t, g.AddUserToGroup(u.ID, mid.ID))

	desc := g.Descendants(top.ID)
	assert.ElementsMatch(t, []int64{mid.ID, u.ID}, desc)
}

func TestDelete_RemovesIncidentEdges(t *testing.T) {
	g := newTestGraph(t)
	u, _ := g.CreateUser(domain.UserAttrs{Name: "Ada"})
	grp, _ := g.CreateGroup(domain.GroupAttrs{Name: "eng"})
	require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))

	require.NoError(t, g.Delete(u.ID))

	_, err := g.GetUser(u.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	gotGroup, err := g.GetGroup(grp.ID)
	require.NoError(t, err)
	assert.False(t, gotGroup.HasChild(u.ID))
}

func TestAddPermission_DuplicateKeyConflict(t *testing.T) {
	g := newTestGraph(t)
	grp, _ := g.CreateGroup(domain.GroupAttrs{Name: "eng"})
	p := domain.Permission{ID: 1, URI: "/api/widgets", Verb: domain.VerbGET, Grant: true}
	_, err := g.AddPermission(grp.ID, p)
	require.NoError(t, err)

	p2 := domain.Permission{ID: 2, URI: "/api/widgets", Verb: domain.VerbGET, Grant: true}
	_, err = g.AddPermission(grp.ID, p2)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestHydrate_RejectsSecondCall(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.Hydrate(Snapshot{}))
	err := g.Hydrate(Snapshot{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.True(t, g.Ready())
}

func TestHydrate_RoundTripsSnapshot(t *testing.T) {
	g := newTestGraph(t)
	u, _ := g.CreateUser(domain.UserAttrs{Name: "Ada", Email: "ada@example.com"})
	grp, _ := g.CreateGroup(domain.GroupAttrs{Name: "eng"})
	require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))
	_, err := g.AddPermission(grp.ID, domain.Permission{
		ID: 1, URI: "/api/widgets", Verb: domain.VerbGET, Grant: true,
	})
	require.NoError(t, err)

	snap := g.Snapshot()

	g2 := New(nil)
	require.NoError(t, g2.Hydrate(snap))
	assert.True(t, g2.Ready())

	gotUser, err := g2.GetUser(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", gotUser.Email)
	assert.True(t, gotUser.HasParent(grp.ID))

	gotGroup, err := g2.GetGroup(grp.ID)
	require.NoError(t, err)
	assert.Len(t, gotGroup.PermissionList(), 1)
}

func TestGetEntity_NotFound(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.GetEntity(999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
