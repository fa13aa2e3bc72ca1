package auth

import (
	"strings"

	"personnel/internal/domain/directory"
)

// Identity is the authenticated caller as carried by the token. It is not
// re-read from the directory.
type Identity struct {
	Username string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i Identity) IsAdmin() bool {
	return i.HasRole(directory.RoleAdmin)
}

type Gate struct {
	tokens *Tokens
}

func NewGate(tokens *Tokens) *Gate {
	return &Gate{tokens: tokens}
}

// Authorize validates an Authorization header of the form "Bearer <token>".
// A missing header and a bad token fail with different codes.
func (g *Gate) Authorize(header string) (Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Identity{}, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Identity{}, ErrMissingToken
	}
	claims, err := g.tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Username: claims.Username, Roles: claims.Roles}, nil
}

// RequireRole fails with ErrForbidden unless the identity carries role.
func RequireRole(id Identity, role string) error {
	if !id.HasRole(role) {
		return ErrForbidden
	}
	return nil
}

func RequirePermission(id Identity, permission string) error {
	if !HasPermission(id.Roles, permission) {
		return ErrForbidden
	}
	return nil
}
