// Package authn is the thin "who is the caller" collaborator ahead of
// command submission (spec §1: "authentication... external collaborator,
// specified only at its interface to the core"). It resolves a bearer
// token into the entity id the transport layer then submits commands as,
// and never reaches into the entity graph itself.
package authn

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carries the caller's entity id (spec §3: every entity has a
// stable int64 id) in its own "eid" claim, keyed to the graph's own
// identity space; the registered subject is an opaque uuid.
type Claims struct {
	jwt.RegisteredClaims
	EntityID int64 `json:"eid"`
}

// Config holds JWT signing configuration.
type Config struct {
	SecretKey      string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       []string
}

type Manager struct {
	config Config
}

func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// IssueAccessToken mints a token asserting entityID as the caller's
// identity for the configured TTL.
func (m *Manager) IssueAccessToken(entityID int64) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uuid.NewString(), // opaque; the entity id is carried in EntityID
			Issuer:    m.config.Issuer,
			Audience:  m.config.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
		EntityID: entityID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Authenticate resolves tokenString into the caller's entity id.
func (m *Manager) Authenticate(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	return claims.EntityID, nil
}
