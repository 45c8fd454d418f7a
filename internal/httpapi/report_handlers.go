package httpapi

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"geovisor.org/internal/audit"
	"geovisor.org/internal/auth"
	"geovisor.org/internal/reports"
)

// createReportRequest mirrors the legacy body. id_usuario and id_entidad are
// optional and, when present, must name the caller.
type createReportRequest struct {
	UserID         *int64              `json:"id_usuario"`
	OrganizationID *int64              `json:"id_entidad"`
	IncidentTypeID int64               `json:"id_tipo_incidente"`
	SeverityID     int64               `json:"id_severidad"`
	Description    string              `json:"descripcion"`
	Address        *string             `json:"direccion"`
	Latitude       decimal.NullDecimal `json:"latitud"`
	Longitude      decimal.NullDecimal `json:"longitud"`
	ImageURL       *string             `json:"imagen_url"`
	Source         string              `json:"fuente_reporte"`
}

type changeStatusRequest struct {
	NewStatusID int64   `json:"id_estado_nuevo"`
	ActorID     *int64  `json:"id_usuario_accion"`
	Comment     *string `json:"comentario"`
}

type reportEnvelope struct {
	Message string         `json:"message"`
	Report  reports.Report `json:"reporte"`
}

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	items, err := a.deps.Reports.List(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	reportID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	rep, err := a.deps.Reports.Get(r.Context(), id, reportID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) createReport(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req createReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	rep, err := a.deps.Reports.Create(r.Context(), id, reports.CreateInput{
		Owner:          auth.OwnerClaim{User: req.UserID, Org: req.OrganizationID},
		IncidentTypeID: req.IncidentTypeID,
		SeverityID:     req.SeverityID,
		Description:    req.Description,
		Address:        req.Address,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ImageURL:       req.ImageURL,
		Source:         req.Source,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "report.created", map[string]any{
		"id_reporte":        rep.ID,
		"id_tipo_incidente": rep.IncidentTypeID,
		"id_severidad":      rep.SeverityID,
	})
	w.Header().Set("Location", "/reportes/"+strconv.FormatInt(rep.ID, 10))
	writeJSON(w, http.StatusCreated, reportEnvelope{Message: "created", Report: rep})
}

func (a *API) changeReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	reportID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	var req changeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	rep, err := a.deps.Reports.ChangeStatus(r.Context(), id, reportID, reports.StatusInput{
		NewStatusID: req.NewStatusID,
		ActorID:     req.ActorID,
		Comment:     req.Comment,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "report.status_changed", map[string]any{
		"id_reporte":      rep.ID,
		"id_estado_nuevo": rep.StatusID,
	})
	writeJSON(w, http.StatusOK, reportEnvelope{Message: "updated", Report: rep})
}

func (a *API) reportHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	reportID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	entries, err := a.deps.Reports.History(r.Context(), id, reportID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
