package domain

import (
	"strings"
	"time"
)

// Role is a named permission bundle. It may have Group parents (the
// role→group edge — "role is a child of the group") and User children
// (the user→role edge), which is how users assigned a role inherit its
// permissions during BFS ancestor collection.
type Role struct {
	Base

	Name        string
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Role) EntityID() int64  { return r.ID }
func (r *Role) EntityKind() Kind { return KindRoleEntity }
func (r *Role) Core() *Base      { return &r.Base }

type RoleAttrs struct {
	Name        string
	Description string
}

type RoleUpdate struct {
	Name        *string
	Description *string
}

func NewRole(id int64, attrs RoleAttrs) (*Role, error) {
	r := &Role{
		Base:        NewBase(id),
		Name:        strings.ToLower(strings.TrimSpace(attrs.Name)),
		Description: strings.TrimSpace(attrs.Description),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Role) Validate() error {
	var errs ValidationErrors
	if r.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "required"})
	} else if len(r.Name) > 100 {
		errs = append(errs, ValidationError{Field: "name", Message: "must be at most 100 characters"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *Role) ApplyUpdate(upd RoleUpdate) error {
	if upd.Name != nil {
		r.Name = strings.ToLower(strings.TrimSpace(*upd.Name))
	}
	if upd.Description != nil {
		r.Description = strings.TrimSpace(*upd.Description)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}
