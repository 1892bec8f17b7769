package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/graph"
)

func newTestEvaluator(t *testing.T, g *graph.Graph, strategy Strategy) *Evaluator {
	t.Helper()
	return New(g, Config{Strategy: strategy, CacheTTL: time.Minute, CacheMax: 1000})
}

// Scenario 1 (spec §8): user in group with a group-glob grant.
func TestScenario1_GlobGrantThroughGroup(t *testing.T) {
	g := graph.New(nil)
	u, err := g.CreateUser(domain.UserAttrs{Name: "u"})
	require.NoError(t, err)
	grp, err := g.CreateGroup(domain.GroupAttrs{Name: "g"})
	require.NoError(t, err)
	require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))
	_, err = g.AddPermission(grp.ID, domain.Permission{
		ID: 1, URI: "/api/users/*", Verb: domain.VerbGET, Grant: true,
	})
	require.NoError(t, err)

	e := newTestEvaluator(t, g, DenyOverrides)

	allowed, err := e.Check(u.ID, "/api/users/42", domain.VerbGET)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.Check(u.ID, "/api/users/42", domain.VerbPOST)
	require.NoError(t, err)
	assert.False(t, allowed)
}

// Scenario 2 (spec §8): direct deny on the user conflicts with the
// inherited group grant; strategy decides the outcome.
func TestScenario2_DenyOverridesVsGrantOverrides(t *testing.T) {
	build := func(t *testing.T) (*graph.Graph, int64) {
		g := graph.New(nil)
		u, err := g.CreateUser(domain.UserAttrs{Name: "u"})
		require.NoError(t, err)
		grp, err := g.CreateGroup(domain.GroupAttrs{Name: "g"})
		require.NoError(t, err)
		require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))
		_, err = g.AddPermission(grp.ID, domain.Permission{
			ID: 1, URI: "/api/users/*", Verb: domain.VerbGET, Grant: true,
		})
	require.NoError(t, err)
		_, err = g.AddPermission(u.ID, domain.Permission{
			ID: 2, URI: "/api/users/42", Verb: domain.VerbGET, Deny: true,
		})
	require.NoError(t, err)
		return g, u.ID
	}

	t.Run("deny overrides", func(t *testing.T) {
		g, uid := build(t)
		e := newTestEvaluator(t, g, DenyOverrides)
		allowed, err := e.Check(uid, "/api/users/42", domain.VerbGET)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("grant overrides", func(t *testing.T) {
		g, uid := build(t)
		e := newTestEvaluator(t, g, GrantOverrides)
		allowed, err := e.Check(uid, "/api/users/42", domain.VerbGET)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

// Scenario 4 (spec §8): role permission reaches the user through
// AssignUserToRole, and the inheritance trace names the role.
func TestScenario4_RolePermissionAndTrace(t *testing.T) {
	g := graph.New(nil)
	u, err := g.CreateUser(domain.UserAttrs{Name: "u"})
	require.NoError(t, err)
	role, err := g.CreateRole(domain.RoleAttrs{Name: "admin"})
	require.NoError(t, err)
	require.NoError(t, g.AssignUserToRole(u.ID, role.ID))
	_, err = g.AddPermission(role.ID, domain.Permission{
		ID: 1, URI: "/admin/*", Verb: domain.VerbDELETE, Grant: true,
	})
	require.NoError(t, err)

	e := newTestEvaluator(t, g, DenyOverrides)

	allowed, err := e.Check(u.ID, "/admin/purge", domain.VerbDELETE)
	require.NoError(t, err)
	assert.True(t, allowed)

	trace, err := e.InheritanceTrace(u.ID, "/admin/purge", domain.VerbDELETE)
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.Equal(t, role.ID, trace[0].EntityID)
	assert.Equal(t, domain.KindRoleEntity, trace[0].EntityKind)
}

func TestCache_HitAndSubtreeInvalidation(t *testing.T) {
	g := graph.New(nil)
	u, _ := g.CreateUser(domain.UserAttrs{Name: "u"})
	grp, _ := g.CreateGroup(domain.GroupAttrs{Name: "g"})
	require.NoError(t, g.AddUserToGroup(u.ID, grp.ID))
	_, err := g.AddPermission(grp.ID, domain.Permission{
		ID: 1, URI: "/x", Verb: domain.VerbGET, Grant: true,
	})
	require.NoError(t, err)

	e := newTestEvaluator(t, g, DenyOverrides)

	d1, err := e.Evaluate(u.ID, "/x", domain.VerbGET, nil)
	require.NoError(t, err)
	assert.False(t, d1.FromCache)

	d2, err := e.Evaluate(u.ID, "/x", domain.VerbGET, nil)
	require.NoError(t, err)
	assert.True(t, d2.FromCache)
	assert.Equal(t, d1.Allowed, d2.Allowed)

	// mutating a permission on the group (an ancestor of u) must
	// invalidate u's cached decision.
	_, err = g.AddPermission(grp.ID, domain.Permission{
		ID: 2, URI: "/x", Verb: domain.VerbGET, Deny: true,
	})
	require.NoError(t, err)
	e.InvalidateEntity(grp.ID, g.Descendants(grp.ID))

	d3, err := e.Evaluate(u.ID, "/x", domain.VerbGET, nil)
	require.NoError(t, err)
	assert.False(t, d3.FromCache)
	assert.False(t, d3.Allowed)
}

func TestMatchURI_LiteralGlobTemplate(t *testing.T) {
	assert.True(t, matchURI("/api/widgets", "/API/Widgets"))
	assert.False(t, matchURI("/api/widgets", "/api/widgets/1"))

	assert.True(t, matchURI("/api/*", "/api/widgets/1"))
	assert.True(t, matchURI("/api/*/edit", "/api/widgets/edit"))
	assert.False(t, matchURI("/api/*/edit", "/api/widgets/view"))

	assert.True(t, matchURI("/api/widgets/{id}", "/api/widgets/42"))
	assert.False(t, matchURI("/api/widgets/{id}", "/api/widgets/42/sub"))
}

func TestSpecificity_LiteralBeatsTemplateBeatsGlob(t *testing.T) {
	assert.True(t, moreSpecific("/api/widgets/1", "/api/widgets/{id}"))
	assert.True(t, moreSpecific("/api/widgets/{id}", "/api/*"))
	assert.True(t, moreSpecific("/api/widgets/*", "/api/*"))
}

func TestResolve_MostRecentPicksHighestID(t *testing.T) {
	perms := []domain.Permission{
		{ID: 1, URI: "/x", Verb: domain.VerbGET, Grant: true},
		{ID: 5, URI: "/x", Verb: domain.VerbGET, Deny: true},
		{ID: 3, URI: "/x", Verb: domain.VerbGET, Grant: true},
	}
	got := resolve(MostRecent, perms)
	assert.Equal(t, int64(5), got.ID)
}

func TestResolve_HighestPriority(t *testing.T) {
	perms := []domain.Permission{
		{ID: 1, URI: "/x", Verb: domain.VerbGET, Grant: true, Priority: 1},
		{ID: 2, URI: "/x", Verb: domain.VerbGET, Deny: true, Priority: 10},
	}
	got := resolve(HighestPriority, perms)
	assert.Equal(t, int64(2), got.ID)
}
