package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"geovisor.org/internal/audit"
	"geovisor.org/internal/auth"
	"geovisor.org/internal/obs"
)

// loginRequest accepts the legacy "correo" key as well as "email".
type loginRequest struct {
	Correo   string `json:"correo"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	ExpiresAt   time.Time           `json:"expires_at"`
	User        auth.PublicIdentity `json:"user"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Correo)
	if email == "" {
		email = strings.TrimSpace(req.Email)
	}
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "correo and password are required")
		return
	}

	res, err := a.deps.Login.Login(r.Context(), email, req.Password)
	if err != nil {
		outcome := loginOutcome(err)
		obs.RecordLogin(outcome)
		_ = audit.LogEvent(r.Context(), "auth.login.failure", map[string]any{
			"correo":  email,
			"outcome": outcome,
		})
		respondError(w, r, err)
		return
	}

	obs.RecordLogin("success")
	noteUser(r.Context(), res.Identity.UserID)
	ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{UserID: res.Identity.UserID})
	_ = audit.LogEvent(ctx, "auth.login.success", map[string]any{
		"correo":     email,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.Token,
		TokenType:   "bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        res.Identity,
	})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountNotActive):
		return "account_not_active"
	case errors.Is(err, auth.ErrHashNotMigrated):
		return "hash_not_migrated"
	default:
		return "error"
	}
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, id.Public())
}
