package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"geovisor.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadScheme    = errors.New("invalid authorization scheme")
)

// IdentityResolver turns a bearer token into the caller's current identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// Authenticate resolves the bearer token on every request and stores the
// identity in the context. The user row is reloaded each time, so role and
// status changes apply immediately.
func Authenticate(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, err.Error())
				return
			}
			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				respondError(w, r, err)
				return
			}
			noteUser(r.Context(), id.UserID)
			ctx := auth.ContextWithIdentity(r.Context(), id)
			ctx = auth.ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActive refuses callers whose account is not active.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			respondError(w, r, auth.ErrUnauthorized)
			return
		}
		if err := auth.RequireActive(id); err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole refuses callers whose role is not listed.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				respondError(w, r, auth.ErrUnauthorized)
				return
			}
			if err := auth.RequireRole(id, roles...); err != nil {
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearer)) {
		return "", errMissingToken
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errBadScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

// identity returns the caller resolved by Authenticate. Handlers are only
// mounted behind it, so a miss is a wiring bug reported as 401.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, r, auth.ErrUnauthorized)
	}
	return id, ok
}
