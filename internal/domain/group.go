package domain

import (
	"strings"
	"time"
)

// Group may have Group parents and User/Group/Role children (spec §3):
// users and roles are placed "in" a group, and groups can contain groups,
// subject to the acyclicity invariant enforced by the graph layer.
type Group struct {
	Base

	Name        string
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (g *Group) EntityID() int64  { return g.ID }
func (g *Group) EntityKind() Kind { return KindGroupEntity }
func (g *Group) Core() *Base      { return &g.Base }

type GroupAttrs struct {
	Name        string
	Description string
}

type GroupUpdate struct {
	Name        *string
	Description *string
}

func NewGroup(id int64, attrs GroupAttrs) (*Group, error) {
	g := &Group{
		Base:        NewBase(id),
		Name:        strings.TrimSpace(attrs.Name),
		Description: strings.TrimSpace(attrs.Description),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Group) Validate() error {
	var errs ValidationErrors
	if g.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "required"})
	} else if len(g.Name) > 100 {
		errs = append(errs, ValidationError{Field: "name", Message: "must be at most 100 characters"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (g *Group) ApplyUpdate(upd GroupUpdate) error {
	if upd.Name != nil {
		g.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		g.Description = strings.TrimSpace(*upd.Description)
	}
	if err := g.Validate(); err != nil {
		return err
	}
	g.UpdatedAt = time.Now().UTC()
	return nil
}
