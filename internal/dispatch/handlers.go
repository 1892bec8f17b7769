package dispatch

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"

	"github.com/mvaleed/acs/internal/authn"
	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/eval"
	"github.com/mvaleed/acs/internal/event"
)

// Lockout policy applied by VerifyPassword (spec §3's failedLoginAttempts
// / lockedUntil fields): five consecutive bad attempts locks the account
// for fifteen minutes.
const (
	maxFailedLoginAttempts = 5
	failedLoginLockout     = 15 * time.Minute
)

var paramValidator = validator.New()

// validateParams runs struct-tag validation on params when it carries
// `validate` tags; command params that are plain scalars (ids) or domain
// types with their own Validate() method (UserAttrs etc, checked by
// graph.Create*) skip this step.
func validateParams(params any) error {
	if err := paramValidator.Struct(params); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return nil // params is not a struct (e.g. a bare id); nothing to check here
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// handle is the closed variant match from Kind to typed result (spec §9's
// "reflection-based dispatch" redesign note): one case per Kind, each
// asserting its expected Params type.
func (d *Dispatcher) handle(cmd *Command) Result {
	switch cmd.Kind {
	case CreateUser:
		return d.handleCreateUser(cmd)
	case CreateGroup:
		return d.handleCreateGroup(cmd)
	case CreateRole:
		return d.handleCreateRole(cmd)
	case GetUser:
		return resultOf(d.graph.GetUser(cmd.Params.(int64)))
	case GetGroup:
		return resultOf(d.graph.GetGroup(cmd.Params.(int64)))
	case GetRole:
		return resultOf(d.graph.GetRole(cmd.Params.(int64)))
	case GetEntity:
		return resultOf(d.graph.GetEntity(cmd.Params.(int64)))
	case UpdateUser:
		return d.handleUpdateUser(cmd)
	case UpdateGroup:
		return d.handleUpdateGroup(cmd)
	case UpdateRole:
		return d.handleUpdateRole(cmd)
	case DeleteUser, DeleteGroup, DeleteRole:
		return d.handleDelete(cmd)
	case AddUserToGroup:
		return d.handleEdge(cmd, domain.EdgeUserGroup, true, d.graph.AddUserToGroup)
	case RemoveUserFromGroup:
		return d.handleEdge(cmd, domain.EdgeUserGroup, false, d.graph.RemoveUserFromGroup)
	case AssignUserToRole:
		return d.handleEdge(cmd, domain.EdgeUserRole, true, d.graph.AssignUserToRole)
	case UnassignUserFromRole:
		return d.handleEdge(cmd, domain.EdgeUserRole, false, d.graph.UnassignUserFromRole)
	case AddRoleToGroup:
		return d.handleEdge(cmd, domain.EdgeRoleGroup, true, d.graph.AddRoleToGroup)
	case RemoveRoleFromGroup:
		return d.handleEdge(cmd, domain.EdgeRoleGroup, false, d.graph.RemoveRoleFromGroup)
	case AddGroupToGroup:
		return d.handleEdge(cmd, domain.EdgeGroupGroup, true, d.graph.AddGroupToGroup)
	case RemoveGroupFromGroup:
		return d.handleEdge(cmd, domain.EdgeGroupGroup, false, d.graph.RemoveGroupFromGroup)
	case AddPermissionToEntity:
		return d.handleAddPermission(cmd)
	case RemovePermissionFromEntity:
		return d.handleRemovePermission(cmd)
	case CheckPermission:
		return d.handleCheckPermission(cmd)
	case VerifyPassword:
		return d.handleVerifyPassword(cmd)
	default:
		return Result{Err: fmt.Errorf("%w: unknown command kind %d", domain.ErrNotSupported, cmd.Kind)}
	}
}

func resultOf[T any](v T, err error) Result {
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

func (d *Dispatcher) handleCreateUser(cmd *Command) Result {
	attrs := cmd.Params.(domain.UserAttrs)
	if attrs.Password != "" {
		hash, err := hashPassword(attrs.Password)
		if err != nil {
			return Result{Err: err}
		}
		attrs.PasswordHash, attrs.Password = hash, ""
	}
	u, err := d.graph.CreateUser(attrs)
	if err != nil {
		return Result{Err: err}
	}
	d.persister.Persist(Mutation{Kind: MutationCreateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: u.ID, EntityKind: domain.KindUserEntity, Entity: u})
	d.publish(cmd, event.TypeEntityCreated, u.ID, map[string]any{"kind": "user"})
	return Result{Value: u}
}

func (d *Dispatcher) handleCreateGroup(cmd *Command) Result {
	attrs := cmd.Params.(domain.GroupAttrs)
	g, err := d.graph.CreateGroup(attrs)
	if err != nil {
		return Result{Err: err}
	}
	d.persister.Persist(Mutation{Kind: MutationCreateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: g.ID, EntityKind: domain.KindGroupEntity, Entity: g})
	d.publish(cmd, event.TypeEntityCreated, g.ID, map[string]any{"kind": "group"})
	return Result{Value: g}
}

func (d *Dispatcher) handleCreateRole(cmd *Command) Result {
	attrs := cmd.Params.(domain.RoleAttrs)
	r, err := d.graph.CreateRole(attrs)
	if err != nil {
		return Result{Err: err}
	}
	d.persister.Persist(Mutation{Kind: MutationCreateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: r.ID, EntityKind: domain.KindRoleEntity, Entity: r})
	d.publish(cmd, event.TypeEntityCreated, r.ID, map[string]any{"kind": "role"})
	return Result{Value: r}
}

func (d *Dispatcher) handleUpdateUser(cmd *Command) Result {
	p := cmd.Params.(UpdateUserParams)
	if p.Update.Password != nil && *p.Update.Password != "" {
		hash, err := hashPassword(*p.Update.Password)
		if err != nil {
			return Result{Err: err}
		}
		p.Update.PasswordHash, p.Update.Password = &hash, nil
	}
	u, err := d.graph.UpdateUser(p.ID, p.Update)
	if err != nil {
		return Result{Err: err}
	}
	d.invalidate(p.ID)
	d.persister.Persist(Mutation{Kind: MutationUpdateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: u.ID, EntityKind: domain.KindUserEntity, Entity: u})
	d.publish(cmd, event.TypeEntityUpdated, u.ID, map[string]any{"kind": "user"})
	return Result{Value: u}
}

func (d *Dispatcher) handleUpdateGroup(cmd *Command) Result {
	p := cmd.Params.(UpdateGroupParams)
	g, err := d.graph.UpdateGroup(p.ID, p.Update)
	if err != nil {
		return Result{Err: err}
	}
	d.invalidate(p.ID)
	d.persister.Persist(Mutation{Kind: MutationUpdateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: g.ID, EntityKind: domain.KindGroupEntity, Entity: g})
	d.publish(cmd, event.TypeEntityUpdated, g.ID, map[string]any{"kind": "group"})
	return Result{Value: g}
}

func (d *Dispatcher) handleUpdateRole(cmd *Command) Result {
	p := cmd.Params.(UpdateRoleParams)
	r, err := d.graph.UpdateRole(p.ID, p.Update)
	if err != nil {
		return Result{Err: err}
	}
	d.invalidate(p.ID)
	d.persister.Persist(Mutation{Kind: MutationUpdateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: r.ID, EntityKind: domain.KindRoleEntity, Entity: r})
	d.publish(cmd, event.TypeEntityUpdated, r.ID, map[string]any{"kind": "role"})
	return Result{Value: r}
}

func (d *Dispatcher) handleDelete(cmd *Command) Result {
	id := cmd.Params.(int64)
	ent, err := d.graph.GetEntity(id)
	if err != nil {
		return Result{Err: err}
	}
	// Collect descendants before Delete removes the entity's edges, so
	// their cached decisions are dropped too.
	desc := d.graph.Descendants(id)
	if err := d.graph.Delete(id); err != nil {
		return Result{Err: err}
	}
	d.evaluator.InvalidateEntity(id, desc)
	d.persister.Persist(Mutation{Kind: MutationDeleteEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: id, EntityKind: ent.EntityKind()})
	d.publish(cmd, event.TypeEntityDeleted, id, map[string]any{"kind": ent.EntityKind().String()})
	return Result{Value: id}
}

func (d *Dispatcher) handleEdge(cmd *Command, kind domain.EdgeKind, adding bool, apply func(a, b int64) error) Result {
	p, ok := cmd.Params.(EdgeParams)
	if !ok {
		return Result{Err: fmt.Errorf("%w: malformed edge params", domain.ErrInternal)}
	}
	if err := validateParams(p); err != nil {
		return Result{Err: err}
	}
	if err := apply(p.ChildID, p.ParentID); err != nil {
		return Result{Err: err}
	}
	d.invalidate(p.ChildID)
	mutKind := MutationLinkEdge
	if !adding {
		mutKind = MutationUnlinkEdge
	}
	d.persister.Persist(Mutation{
		Kind: mutKind, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID,
		EntityID: p.ChildID,
		Edge:     &EdgeMutation{ChildID: p.ChildID, ParentID: p.ParentID, EdgeKind: kind},
	})
	evType := event.TypeEdgeLinked
	if !adding {
		evType = event.TypeEdgeUnlinked
	}
	d.publish(cmd, evType, p.ChildID, map[string]any{"parent_id": p.ParentID, "edge_kind": string(kind)})
	return Result{Value: struct{}{}}
}

func (d *Dispatcher) handleAddPermission(cmd *Command) Result {
	p := cmd.Params.(PermissionParams)
	if err := validateParams(p); err != nil {
		return Result{Err: err}
	}
	perm, err := d.graph.AddPermission(p.EntityID, p.Permission)
	if err != nil {
		return Result{Err: err}
	}
	d.invalidate(p.EntityID)
	d.persister.Persist(Mutation{Kind: MutationAddPermission, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: p.EntityID, Permission: &perm})
	d.publish(cmd, event.TypePermissionGranted, p.EntityID, map[string]any{"uri": perm.URI, "verb": string(perm.Verb), "grant": perm.Grant})
	return Result{Value: perm}
}

func (d *Dispatcher) handleRemovePermission(cmd *Command) Result {
	p := cmd.Params.(PermissionParams)
	if err := validateParams(p); err != nil {
		return Result{Err: err}
	}
	if err := d.graph.RemovePermission(p.EntityID, p.Key); err != nil {
		return Result{Err: err}
	}
	d.invalidate(p.EntityID)
	key := p.Key
	d.persister.Persist(Mutation{Kind: MutationRemovePermission, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: p.EntityID, PermissionKey: &key})
	d.publish(cmd, event.TypePermissionRevoked, p.EntityID, map[string]any{"uri": key.URI, "verb": string(key.Verb), "scheme": key.Scheme})
	return Result{Value: struct{}{}}
}

// hashPassword validates a plaintext credential's strength and hashes it
// (spec §1's "authentication and password hashing" external collaborator),
// the only place the command surface hashes a password.
func hashPassword(plain string) (string, error) {
	if err := authn.ValidatePasswordStrength(plain); err != nil {
		return "", domain.ValidationError{Field: "password", Message: err.Error()}
	}
	hash, err := authn.HashPassword(plain)
	if err != nil {
		return "", fmt.Errorf("%w: hashing password", domain.ErrInternal)
	}
	return hash, nil
}

func (d *Dispatcher) handleVerifyPassword(cmd *Command) Result {
	p := cmd.Params.(VerifyPasswordParams)
	if err := validateParams(p); err != nil {
		return Result{Err: err}
	}
	u, err := d.graph.VerifyPassword(p.Email, p.Password, authn.CheckPassword, maxFailedLoginAttempts, failedLoginLockout)
	if u != nil {
		d.persister.Persist(Mutation{Kind: MutationUpdateEntity, CommandKind: cmd.Kind, CorrelationID: cmd.CorrelationID, EntityID: u.ID, EntityKind: domain.KindUserEntity, Entity: u})
	}
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: u}
}

func (d *Dispatcher) handleCheckPermission(cmd *Command) Result {
	p := cmd.Params.(CheckParams)
	if err := validateParams(p); err != nil {
		return Result{Err: err}
	}
	var evalCtx *eval.EvalContext
	if p.Attributes != nil {
		evalCtx = &eval.EvalContext{Attributes: p.Attributes}
	}
	decision, err := d.evaluator.Evaluate(p.EntityID, p.URI, p.Verb, evalCtx)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: decision}
}

// invalidate drops cached decisions for entityID and every descendant,
// since a mutation on entityID can change what any descendant's
// inherited-permission walk sees (spec §4.B).
func (d *Dispatcher) invalidate(entityID int64) {
	d.evaluator.InvalidateEntity(entityID, d.graph.Descendants(entityID))
}

// publish emits a domain event for an accepted mutation. Publish failures
// are logged, not propagated: event emission is best-effort and never
// rolls back an already-applied mutation.
func (d *Dispatcher) publish(cmd *Command, typ event.Type, entityID int64, data map[string]any) {
	if err := d.events.Publish(cmd.ctx, event.New(typ, entityID, cmd.CorrelationID, data)); err != nil {
		d.logger.Warn("event publish failed",
			zap.String("type", string(typ)),
			zap.Int64("entity_id", entityID),
			zap.String("correlation_id", cmd.CorrelationID),
			zap.Error(err),
		)
	}
}
