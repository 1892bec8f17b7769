package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/eval"
)

// graphPort is the slice of *graph.Graph the dispatcher drives. Declaring
// it here (rather than importing the concrete type) keeps dispatch
// buildable against a fake graph in tests and documents exactly which
// mutator primitives the single-writer consumer is allowed to call.
type graphPort interface {
	Ready() bool

	GetUser(id int64) (*domain.User, error)
	GetGroup(id int64) (*domain.Group, error)
	GetRole(id int64) (*domain.Role, error)
	GetEntity(id int64) (domain.Entity, error)

	CreateUser(attrs domain.UserAttrs) (*domain.User, error)
	CreateGroup(attrs domain.GroupAttrs) (*domain.Group, error)
	CreateRole(attrs domain.RoleAttrs) (*domain.Role, error)

	VerifyPassword(email, password string, checker func(password, hash string) error, maxAttempts int, lockFor time.Duration) (*domain.User, error)

	UpdateUser(id int64, upd domain.UserUpdate) (*domain.User, error)
	UpdateGroup(id int64, upd domain.GroupUpdate) (*domain.Group, error)
	UpdateRole(id int64, upd domain.RoleUpdate) (*domain.Role, error)

	Delete(id int64) error

	AddUserToGroup(userID, groupID int64) error
	RemoveUserFromGroup(userID, groupID int64) error
	AssignUserToRole(userID, roleID int64) error
	UnassignUserFromRole(userID, roleID int64) error
	AddRoleToGroup(roleID, groupID int64) error
	RemoveRoleFromGroup(roleID, groupID int64) error
	AddGroupToGroup(groupID, parentID int64) error
	RemoveGroupFromGroup(groupID, parentID int64) error

	AddPermission(entityID int64, p domain.Permission) (domain.Permission, error)
	RemovePermission(entityID int64, key domain.PermKey) error

	Descendants(id int64) []int64
}

// evaluatorPort is the evaluator surface the dispatcher needs: answering
// CheckPermission and invalidating cache entries after a mutation.
type evaluatorPort interface {
	Evaluate(entityID int64, uri string, verb domain.Verb, ctx *eval.EvalContext) (eval.Decision, error)
	InvalidateEntity(entityID int64, descendants []int64)
}

func newCorrelationID() string {
	return uuid.NewString()
}
