package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/domain"
)

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind dispatch.Kind, params any) {
	v, err := s.dispatcher.Submit(r.Context(), kind, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if kind == dispatch.CreateUser || kind == dispatch.CreateGroup || kind == dispatch.CreateRole || kind == dispatch.AddPermissionToEntity {
		status = http.StatusCreated
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, status, v)
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleLogin is the one place the HTTP transport touches credentials
// directly (spec §1: "authentication... specified only at its interface
// to the core"): it submits VerifyPassword to the core for the lockout
// bookkeeping and pass/fail verdict, then mints the bearer token itself,
// since token issuance is the transport's concern, not the core's.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}

	v, err := s.dispatcher.Submit(r.Context(), dispatch.VerifyPassword, dispatch.VerifyPasswordParams{Email: req.Email, Password: req.Password})
	if err != nil {
		s.writeError(w, errUnauthenticated)
		return
	}
	u := v.(*domain.User)

	token, expiresAt, err := s.authn.IssueAccessToken(u.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, ExpiresAt: expiresAt})
}

// --- Users ---

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var attrs domain.UserAttrs
	if err := s.readJSON(r, &attrs); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.CreateUser, attrs)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	s.submit(w, r, dispatch.GetUser, id)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	var upd domain.UserUpdate
	if err := s.readJSON(r, &upd); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.UpdateUser, dispatch.UpdateUserParams{ID: id, Update: upd})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	s.submit(w, r, dispatch.DeleteUser, id)
}

func (s *Server) handleAddUserToGroup(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.AddUserToGroup, "id", "groupId")
}

func (s *Server) handleRemoveUserFromGroup(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.RemoveUserFromGroup, "id", "groupId")
}

func (s *Server) handleAssignUserToRole(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.AssignUserToRole, "id", "roleId")
}

func (s *Server) handleUnassignUserFromRole(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.UnassignUserFromRole, "id", "roleId")
}

func (s *Server) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	perms, err := s.evaluator.EffectivePermissions(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, perms)
}

// --- Groups ---

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var attrs domain.GroupAttrs
	if err := s.readJSON(r, &attrs); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.CreateGroup, attrs)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	s.submit(w, r, dispatch.GetGroup, id)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	var upd domain.GroupUpdate
	if err := s.readJSON(r, &upd); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.UpdateGroup, dispatch.UpdateGroupParams{ID: id, Update: upd})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	s.submit(w, r, dispatch.DeleteGroup, id)
}

func (s *Server) handleAddGroupToGroup(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.AddGroupToGroup, "id", "parentId")
}

func (s *Server) handleRemoveGroupFromGroup(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.RemoveGroupFromGroup, "id", "parentId")
}

// --- Roles ---

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var attrs domain.RoleAttrs
	if err := s.readJSON(r, &attrs); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.CreateRole, attrs)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	s.submit(w, r, dispatch.GetRole, id)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	var upd domain.RoleUpdate
	if err := s.readJSON(r, &upd); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.UpdateRole, dispatch.UpdateRoleParams{ID: id, Update: upd})
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	s.submit(w, r, dispatch.DeleteRole, id)
}

func (s *Server) handleAddRoleToGroup(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.AddRoleToGroup, "id", "groupId")
}

func (s *Server) handleRemoveRoleFromGroup(w http.ResponseWriter, r *http.Request) {
	s.submitEdge(w, r, dispatch.RemoveRoleFromGroup, "id", "groupId")
}

func (s *Server) submitEdge(w http.ResponseWriter, r *http.Request, kind dispatch.Kind, childParam, parentParam string) {
	childID, err := idParam(r, childParam)
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: childParam, Message: "must be an integer"})
		return
	}
	parentID, err := idParam(r, parentParam)
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: parentParam, Message: "must be an integer"})
		return
	}
	s.submit(w, r, kind, dispatch.EdgeParams{ChildID: childID, ParentID: parentID})
}

// --- Permissions ---

func (s *Server) handleAddPermission(w http.ResponseWriter, r *http.Request) {
	entityID, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	var perm domain.Permission
	if err := s.readJSON(r, &perm); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.AddPermissionToEntity, dispatch.PermissionParams{EntityID: entityID, Permission: perm})
}

func (s *Server) handleRemovePermission(w http.ResponseWriter, r *http.Request) {
	entityID, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, domain.ValidationError{Field: "id", Message: "must be an integer"})
		return
	}
	key := domain.PermKey{
		URI:    r.URL.Query().Get("uri"),
		Verb:   domain.Verb(r.URL.Query().Get("verb")),
		Scheme: r.URL.Query().Get("scheme"),
	}
	s.submit(w, r, dispatch.RemovePermissionFromEntity, dispatch.PermissionParams{EntityID: entityID, Key: key})
}

// --- Check ---

type checkRequest struct {
	EntityID   int64
	URI        string
	Verb       domain.Verb
	Attributes map[string]string
}

func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, domain.ValidationError{Field: "body", Message: "invalid JSON"})
		return
	}
	s.submit(w, r, dispatch.CheckPermission, dispatch.CheckParams{
		EntityID: req.EntityID, URI: req.URI, Verb: req.Verb, Attributes: req.Attributes,
	})
}
