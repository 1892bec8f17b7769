package domain

import (
	"net/mail"
	"strings"
	"time"
)

// User is a leaf entity in the containment graph: it may have Group and
// Role parents (spec §3) but is never itself a parent of anything.
type User struct {
	Base

	Name  string
	Email string // lowercase-normalized, unique when non-empty

	// Salt is spec §3's named credential-metadata field; bcrypt (the
	// scheme internal/authn hashes with) embeds its own salt in
	// PasswordHash, so this stays empty under that scheme and exists for
	// a future credential scheme that needs it kept separate.
	PasswordHash        string
	Salt                string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	IsActive            bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) EntityID() int64   { return u.ID }
func (u *User) EntityKind() Kind  { return KindUserEntity }
func (u *User) Core() *Base       { return &u.Base }

// UserAttrs are the fields accepted by CreateUser. Password carries a
// plaintext credential and is never stored: the dispatcher hashes it into
// PasswordHash (spec §1's "authentication and password hashing" external
// collaborator) before CreateUser ever sees it, then clears Password.
type UserAttrs struct {
	Name         string
	Email        string
	Password     string
	PasswordHash string
}

// UserUpdate carries the optional fields UpdateUser may change; a nil
// pointer leaves the field untouched, mirroring the teacher's
// pointer-field update-input pattern. Password/PasswordHash follow the
// same hash-before-graph convention as UserAttrs.
type UserUpdate struct {
	Name         *string
	Email        *string
	IsActive     *bool
	Password     *string
	PasswordHash *string
}

// NewUser validates attrs and constructs a User with the given id. The
// graph layer is responsible for id assignment and uniqueness checks
// against the rest of the graph (email collisions span all users).
func NewUser(id int64, attrs UserAttrs) (*User, error) {
	u := &User{
		Base:         NewBase(id),
		Name:         strings.TrimSpace(attrs.Name),
		Email:        strings.ToLower(strings.TrimSpace(attrs.Email)),
		PasswordHash: attrs.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) Validate() error {
	var errs ValidationErrors

	if u.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "required"})
	} else if len(u.Name) > 200 {
		errs = append(errs, ValidationError{Field: "name", Message: "must be at most 200 characters"})
	}

	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			errs = append(errs, ValidationError{Field: "email", Message: "invalid format"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ApplyUpdate applies non-nil fields from upd and re-validates.
func (u *User) ApplyUpdate(upd UserUpdate) error {
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*upd.Email))
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}
	if err := u.Validate(); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// RegisterFailedLogin increments the failed-attempt counter and locks the
// account past a threshold, mirroring the credential-metadata fields spec
// §3 attaches to User even though authentication itself is an external
// collaborator.
func (u *User) RegisterFailedLogin(threshold int, lockFor time.Duration) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := time.Now().UTC().Add(lockFor)
		u.LockedUntil = &until
	}
}

func (u *User) ResetFailedLogins() {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	now := time.Now().UTC()
	u.LastLoginAt = &now
}

func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().UTC().Before(*u.LockedUntil)
}
