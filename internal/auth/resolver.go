package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Resolver turns a bearer token into the caller's current Identity.
type Resolver struct {
	store CredentialStore
	codec *Codec
}

func NewResolver(store CredentialStore, codec *Codec) *Resolver {
	return &Resolver{store: store, codec: codec}
}

// Resolve verifies token and reloads the user it names. Decode failures and
// deleted users are ErrUnauthorized; store failures are returned wrapped.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := r.codec.Decode(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id, err := r.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("auth: load identity: %w", err)
	}
	return id, nil
}

// RequireActive refuses identities whose account is not active.
func RequireActive(id Identity) error {
	if id.Status != StatusActive {
		return Forbidden(ReasonAccountNotActive)
	}
	return nil
}

// RequireRole refuses identities whose role is not in roles. Roles outside
// the known set fail as ReasonUnknownRole, matching the policy.
func RequireRole(id Identity, roles ...Role) error {
	if id.Role < RoleCitizen || id.Role > RoleAdministrator {
		return Forbidden(ReasonUnknownRole)
	}
	if !slices.Contains(roles, id.Role) {
		return Forbidden(ReasonRoleNotPermitted)
	}
	return nil
}
