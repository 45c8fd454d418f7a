package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"geovisor.org/internal/audit"
)

type markReadRequest struct {
	Read *bool `json:"leida"`
}

// listNotifications serves the caller's inbox. ?id_usuario= selects another
// inbox, subject to the read policy; ?no_leidas=true filters unread entries.
func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var userID int64
	if raw := strings.TrimSpace(q.Get("id_usuario")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 1 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "id_usuario must be a positive integer")
			return
		}
		userID = v
	}
	unreadOnly := false
	if raw := strings.TrimSpace(q.Get("no_leidas")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "no_leidas must be a boolean")
			return
		}
		unreadOnly = v
	}

	items, err := a.deps.Notifications.List(r.Context(), id, userID, unreadOnly)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// markNotification sets the read flag. The body is optional and defaults to
// {"leida": true}.
func (a *API) markNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	notificationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	var req markReadRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errBodyRequired) {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}

	n, err := a.deps.Notifications.MarkRead(r.Context(), id, notificationID, read)
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "notification.acknowledged", map[string]any{
		"id_notificacion": n.ID,
		"leida":           n.Read,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "ok",
		"id_notificacion": n.ID,
		"leida":           n.Read,
	})
}
