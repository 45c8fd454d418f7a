package httpapi

import (
	"errors"
	"net/http"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/notifications"
	"geovisor.org/internal/obs"
	"geovisor.org/internal/reports"
	"geovisor.org/internal/store"
)

// Machine readable error codes carried in the "code" field.
const (
	codeUnauthorized       = "unauthorized"
	codeInvalidCredentials = "invalid_credentials"
	codeForbidden          = "forbidden"
	codeAccountNotActive   = "account_not_active"
	codeHashNotMigrated    = "hash_not_migrated"
	codeNotFound           = "not_found"
	codeIntegrity          = "integrity_violation"
	codeSQL                = "sql_error"
	codeConnection         = "connection_error"
	codeBadRequest         = "bad_request"
	codeRateLimited        = "rate_limited"
	codeMethodNotAllowed   = "method_not_allowed"
	codeInternal           = "internal_error"
)

type apiError struct {
	status  int
	code    string
	message string
	reason  string
}

// classifyError maps a domain or store error to its HTTP representation.
func classifyError(err error) apiError {
	if reason, ok := auth.ReasonOf(err); ok {
		return apiError{http.StatusForbidden, codeForbidden, "operation not permitted", reason.String()}
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apiError{status: http.StatusUnauthorized, code: codeInvalidCredentials, message: "invalid credentials"}
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return apiError{status: http.StatusUnauthorized, code: codeUnauthorized, message: "invalid or expired token"}
	case errors.Is(err, auth.ErrAccountNotActive):
		return apiError{http.StatusForbidden, codeAccountNotActive, "account is not active", auth.ReasonAccountNotActive.String()}
	case errors.Is(err, auth.ErrHashNotMigrated):
		return apiError{status: http.StatusInternalServerError, code: codeHashNotMigrated,
			message: "stored password hash uses an unsupported scheme; reset it with geovisorctl hash-password"}
	case errors.Is(err, reports.ErrNotFound):
		return apiError{status: http.StatusNotFound, code: codeNotFound, message: "report not found"}
	case errors.Is(err, notifications.ErrNotFound):
		return apiError{status: http.StatusNotFound, code: codeNotFound, message: "notification not found"}
	case errors.Is(err, store.ErrUnknownCatalog):
		return apiError{status: http.StatusNotFound, code: codeNotFound, message: "catalog not found"}
	case errors.Is(err, auth.ErrNotFound):
		return apiError{status: http.StatusNotFound, code: codeNotFound, message: "user not found"}
	case errors.Is(err, reports.ErrInvalidInput):
		return apiError{status: http.StatusBadRequest, code: codeBadRequest, message: err.Error()}
	}
	if kind, ok := store.KindOf(err); ok {
		switch kind {
		case store.KindIntegrity:
			return apiError{status: http.StatusBadRequest, code: codeIntegrity,
				message: "referenced record does not exist or value is duplicated; check id_usuario, id_tipo_incidente, id_severidad and id_estado (ids start at 1)"}
		case store.KindConnection:
			return apiError{status: http.StatusInternalServerError, code: codeConnection, message: "database unavailable"}
		default:
			return apiError{status: http.StatusInternalServerError, code: codeSQL, message: "database query failed"}
		}
	}
	return apiError{status: http.StatusInternalServerError, code: codeInternal, message: "internal error"}
}

// respondError writes err as a JSON error body. Server side failures are
// logged with their cause; the cause is never sent to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := classifyError(err)
	if e.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}
	if e.status >= http.StatusInternalServerError {
		obs.Logger().ErrorContext(r.Context(), "request_failed",
			"request_id", RequestIDFromContext(r.Context()),
			"code", e.code,
			"error", err.Error(),
		)
	}
	writeErrorBody(w, r, e)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}
	writeErrorBody(w, r, apiError{status: status, code: code, message: msg})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, e apiError) {
	payload := map[string]any{
		"error": e.message,
		"code":  e.code,
	}
	if e.reason != "" {
		payload["reason"] = e.reason
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, e.status, payload)
}
