package dispatch

import (
	"context"

	"github.com/mvaleed/acs/internal/domain"
)

// Kind is the closed set of command variants the dispatcher accepts (spec
// §6's "Command surface"). Every variant has a case in handlers.go's
// handle switch.
type Kind int

const (
	CreateUser Kind = iota + 1
	CreateGroup
	CreateRole
	GetUser
	GetGroup
	GetRole
	GetEntity
	UpdateUser
	UpdateGroup
	UpdateRole
	DeleteUser
	DeleteGroup
	DeleteRole

	AddUserToGroup
	RemoveUserFromGroup
	AssignUserToRole
	UnassignUserFromRole
	AddRoleToGroup
	RemoveRoleFromGroup
	AddGroupToGroup
	RemoveGroupFromGroup

	AddPermissionToEntity
	RemovePermissionFromEntity
	CheckPermission

	VerifyPassword
)

func (k Kind) String() string {
	switch k {
	case CreateUser:
		return "CreateUser"
	case CreateGroup:
		return "CreateGroup"
	case CreateRole:
		return "CreateRole"
	case GetUser:
		return "GetUser"
	case GetGroup:
		return "GetGroup"
	case GetRole:
		return "GetRole"
	case GetEntity:
		return "GetEntity"
	case UpdateUser:
		return "UpdateUser"
	case UpdateGroup:
		return "UpdateGroup"
	case UpdateRole:
		return "UpdateRole"
	case DeleteUser:
		return "DeleteUser"
	case DeleteGroup:
		return "DeleteGroup"
	case DeleteRole:
		return "DeleteRole"
	case AddUserToGroup:
		return "AddUserToGroup"
	case RemoveUserFromGroup:
		return "RemoveUserFromGroup"
	case AssignUserToRole:
		return "AssignUserToRole"
	case UnassignUserFromRole:
		return "UnassignUserFromRole"
	case AddRoleToGroup:
		return "AddRoleToGroup"
	case RemoveRoleFromGroup:
		return "RemoveRoleFromGroup"
	case AddGroupToGroup:
		return "AddGroupToGroup"
	case RemoveGroupFromGroup:
		return "RemoveGroupFromGroup"
	case AddPermissionToEntity:
		return "AddPermissionToEntity"
	case RemovePermissionFromEntity:
		return "RemovePermissionFromEntity"
	case CheckPermission:
		return "CheckPermission"
	case VerifyPassword:
		return "VerifyPassword"
	default:
		return "Unknown"
	}
}

// isMutation reports whether a command kind mutates the graph, as opposed
// to a pure read (Get*, CheckPermission). Mutations are the only commands
// forwarded to the Persistence Coordinator.
func (k Kind) isMutation() bool {
	switch k {
	case GetUser, GetGroup, GetRole, GetEntity, CheckPermission:
		return false
	default:
		return true
	}
}

// UpdateUserParams, UpdateGroupParams, UpdateRoleParams carry the target
// id and the partial-update payload for the three Update* commands.
type UpdateUserParams struct {
	ID     int64
	Update domain.UserUpdate
}

type UpdateGroupParams struct {
	ID     int64
	Update domain.GroupUpdate
}

type UpdateRoleParams struct {
	ID     int64
	Update domain.RoleUpdate
}

// EdgeParams carries the (child, parent) pair for every edge command
// under the same two field names: the user, role or child group is
// ChildID and the group, role or parent group is ParentID.
type EdgeParams struct {
	ChildID  int64 `validate:"required,gt=0"`
	ParentID int64 `validate:"required,gt=0"`
}

// PermissionParams carries the target entity and the permission payload
// for AddPermissionToEntity / RemovePermissionFromEntity.
type PermissionParams struct {
	EntityID   int64 `validate:"required,gt=0"`
	Permission domain.Permission
	Key        domain.PermKey // used only by RemovePermissionFromEntity
}

// CheckParams carries a CheckPermission command's arguments, including
// the optional evaluation context for conditional/temporary permissions.
type CheckParams struct {
	EntityID   int64  `validate:"required,gt=0"`
	URI        string `validate:"required"`
	Verb       domain.Verb
	Attributes map[string]string
}

// VerifyPasswordParams carries a login attempt's credentials for the
// VerifyPassword command.
type VerifyPasswordParams struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// Command is one submitted unit of work. Params holds one of the
// attrs/id/*Params types above depending on Kind; the handler asserts the
// expected type and panics (recovered by the dispatcher as Internal) on
// mismatch, which can only happen from a programming error at the call
// site, never from external input.
type Command struct {
	Kind          Kind
	Params        any
	CorrelationID string

	ctx    context.Context
	result chan Result
}

// Result is what a command's completion promise resolves to: exactly one
// of Value or Err is set.
type Result struct {
	Value any
	Err   error
}
