package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"geovisor.org/internal/auth"
)

type stubResolver struct {
	id  auth.Identity
	err error
	got string
}

func (s *stubResolver) Resolve(_ context.Context, token string) (auth.Identity, error) {
	s.got = token
	return s.id, s.err
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer   abc ", "abc", nil},
		{"", "", errMissingToken},
		{"Bearer ", "", errMissingToken},
		{"bearer", "", errMissingToken},
		{"  Bearer   ", "", errMissingToken},
		{"Bearerabc", "", errBadScheme},
		{"Basic abc", "", errBadScheme},
		{"Token", "", errBadScheme},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Fatalf("%q: got (%q, %v), want (%q, %v)", tc.header, got, err, tc.want, tc.err)
		}
	}
}

func TestAuthenticateStoresIdentity(t *testing.T) {
	resolver := &stubResolver{id: auth.Identity{UserID: 7, Role: auth.RoleCitizen, Status: auth.StatusActive}}
	var seen auth.Identity
	handler := Authenticate(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.IdentityFromContext(r.Context())
		if tok, _ := auth.TokenFromContext(r.Context()); tok != "tok-1" {
			t.Errorf("unexpected token in context: %q", tok)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/reportes", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resolver.got != "tok-1" || seen.UserID != 7 {
		t.Fatalf("identity not propagated: resolver got %q, seen %+v", resolver.got, seen)
	}
}

func TestAuthenticateRejectsUnresolvedToken(t *testing.T) {
	handler := Authenticate(&stubResolver{err: auth.ErrUnauthorized})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reportes", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestAuthenticateStoreFailureIsServerError(t *testing.T) {
	handler := Authenticate(&stubResolver{err: errors.New("db down")})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reportes", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func withIdentity(r *http.Request, id auth.Identity) *http.Request {
	return r.WithContext(auth.ContextWithIdentity(r.Context(), id))
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(auth.RoleModerator, auth.RoleAdministrator)(okHandler())

	cases := []struct {
		name   string
		id     *auth.Identity
		status int
	}{
		{"matching role", &auth.Identity{UserID: 1, Role: auth.RoleModerator, Status: auth.StatusActive}, http.StatusOK},
		{"other role", &auth.Identity{UserID: 1, Role: auth.RoleCitizen, Status: auth.StatusActive}, http.StatusForbidden},
		{"unknown role", &auth.Identity{UserID: 1, Role: auth.RoleUnknown, Status: auth.StatusActive}, http.StatusForbidden},
		{"no identity", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/internal", nil)
			if tc.id != nil {
				req = withIdentity(req, *tc.id)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestRequireActive(t *testing.T) {
	for _, status := range []auth.AccountStatus{auth.StatusInactive, auth.StatusSuspended, auth.StatusPending} {
		req := withIdentity(httptest.NewRequest(http.MethodGet, "/reportes", nil),
			auth.Identity{UserID: 1, Role: auth.RoleAdministrator, Status: status})
		rr := httptest.NewRecorder()
		RequireActive(okHandler()).ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status %v: expected 403, got %d", status, rr.Code)
		}
	}
}
