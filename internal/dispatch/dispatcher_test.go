package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/eval"
	"github.com/mvaleed/acs/internal/graph"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *graph.Graph) {
	t.Helper()
	g := graph.New(nil)
	require.NoError(t, g.Hydrate(graph.Snapshot{}))
	e := eval.New(g, eval.Config{CacheTTL: time.Minute})
	d := New(g, e)
	t.Cleanup(func() {
		_ = d.Shutdown(time.Second)
	})
	return d, g
}

func TestDispatcher_CreateAndCheckPermission(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	v, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada"})
	require.NoError(t, err)
	u := v.(*domain.User)

	v, err = d.Submit(ctx, CreateGroup, domain.GroupAttrs{Name: "eng"})
	require.NoError(t, err)
	grp := v.(*domain.Group)

	_, err = d.Submit(ctx, AddUserToGroup, EdgeParams{ChildID: u.ID, ParentID: grp.ID})
	require.NoError(t, err)

	_, err = d.Submit(ctx, AddPermissionToEntity, PermissionParams{
		EntityID:   grp.ID,
		Permission: domain.Permission{ID: 1, URI: "/api/*", Verb: domain.VerbGET, Grant: true},
	})
	require.NoError(t, err)

	v, err = d.Submit(ctx, CheckPermission, CheckParams{EntityID: u.ID, URI: "/api/widgets", Verb: domain.VerbGET})
	require.NoError(t, err)
	decision := v.(eval.Decision)
	assert.True(t, decision.Allowed)
}

func TestDispatcher_DuplicateEdgeIsConflict(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	uv, _ := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada"})
	u := uv.(*domain.User)
	gv, _ := d.Submit(ctx, CreateGroup, domain.GroupAttrs{Name: "eng"})
	grp := gv.(*domain.Group)

	_, err := d.Submit(ctx, AddUserToGroup, EdgeParams{ChildID: u.ID, ParentID: grp.ID})
	require.NoError(t, err)

	_, err = d.Submit(ctx, AddUserToGroup, EdgeParams{ChildID: u.ID, ParentID: grp.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestDispatcher_CycleRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	av, _ := d.Submit(ctx, CreateGroup, domain.GroupAttrs{Name: "a"})
	bv, _ := d.Submit(ctx, CreateGroup, domain.GroupAttrs{Name: "b"})
	a, b := av.(*domain.Group), bv.(*domain.Group)

	_, err := d.Submit(ctx, AddGroupToGroup, EdgeParams{ChildID: b.ID, ParentID: a.ID})
	require.NoError(t, err)

	_, err = d.Submit(ctx, AddGroupToGroup, EdgeParams{ChildID: a.ID, ParentID: b.ID})
	assert.ErrorIs(t, err, domain.ErrWouldCreateCycle)
}

func TestDispatcher_CancelBeforeDequeue(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada"})
	assert.ErrorIs(t, err, domain.ErrCanceled)
}

func TestDispatcher_ConcurrentSubmitSingleTotalOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	gv, _ := d.Submit(ctx, CreateGroup, domain.GroupAttrs{Name: "eng"})
	grp := gv.(*domain.Group)

	const n = 50
	users := make([]int64, n)
	for i := 0; i < n; i++ {
		uv, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "u"})
		require.NoError(t, err)
		users[i] = uv.(*domain.User).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Submit(ctx, AddUserToGroup, EdgeParams{ChildID: users[i], ParentID: grp.ID})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.ElementsMatch(t, users, grp.ChildIDs())
}

func TestDispatcher_ShutdownRejectsNewSubmissions(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.Shutdown(time.Second))

	_, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada"})
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}

func TestDispatcher_CreateUserHashesPasswordAndVerifyPasswordChecksIt(t *testing.T) {
	d, g := newTestDispatcher(t)
	ctx := context.Background()

	uv, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada", Email: "ada@example.com", Password: "Correct-Horse9"})
	require.NoError(t, err)
	u := uv.(*domain.User)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "Correct-Horse9", u.PasswordHash, "the plaintext password must never be stored")

	stored, err := g.GetUser(u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, stored.PasswordHash)

	_, err = d.Submit(ctx, VerifyPassword, VerifyPasswordParams{Email: "ada@example.com", Password: "wrong-password1"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	v, err := d.Submit(ctx, VerifyPassword, VerifyPasswordParams{Email: "ada@example.com", Password: "Correct-Horse9"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, v.(*domain.User).ID)
}

func TestDispatcher_CreateUserRejectsWeakPassword(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada", Password: "weak"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDispatcher_UpdateUserRehashesPassword(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	uv, err := d.Submit(ctx, CreateUser, domain.UserAttrs{Name: "Ada", Email: "ada@example.com", Password: "Correct-Horse9"})
	require.NoError(t, err)
	u := uv.(*domain.User)

	newPassword := "Even-Better-Horse1"
	_, err = d.Submit(ctx, UpdateUser, UpdateUserParams{ID: u.ID, Update: domain.UserUpdate{Password: &newPassword}})
	require.NoError(t, err)

	_, err = d.Submit(ctx, VerifyPassword, VerifyPasswordParams{Email: "ada@example.com", Password: "Correct-Horse9"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "the old password must no longer work")

	_, err = d.Submit(ctx, VerifyPassword, VerifyPasswordParams{Email: "ada@example.com", Password: newPassword})
	assert.NoError(t, err)
}

func TestDispatcher_RefusesMutationBeforeHydration(t *testing.T) {
	g := graph.New(nil)
	e := eval.New(g, eval.Config{})
	d := New(g, e)
	defer d.Shutdown(time.Second)

	_, err := d.Submit(context.Background(), CreateUser, domain.UserAttrs{Name: "Ada"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
