package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"geovisor.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("reports: not found")
	ErrInvalidInput = errors.New("reports: invalid input")
)

// InitialStatusID is the estado_reporte row every new report starts in.
const InitialStatusID int64 = 1

// DefaultSource is stored when the client does not name a report source.
const DefaultSource = "CIUDADANO"

// NotificationKindStatusChange tags inbox entries produced by status changes.
const NotificationKindStatusChange = "CAMBIO_ESTADO"

// Report is a citizen incident report joined with its catalog labels.
type Report struct {
	ID             int64               `json:"id_reporte"`
	Description    string              `json:"descripcion"`
	Address        *string             `json:"direccion"`
	Latitude       decimal.NullDecimal `json:"latitud"`
	Longitude      decimal.NullDecimal `json:"longitud"`
	ImageURL       *string             `json:"imagen_url"`
	Source         string              `json:"fuente_reporte"`
	CreatedAt      time.Time           `json:"created_at"`
	UserID         int64               `json:"id_usuario"`
	OrganizationID *int64              `json:"id_entidad"`
	IncidentTypeID int64               `json:"id_tipo_incidente"`
	SeverityID     int64               `json:"id_severidad"`
	StatusID       int64               `json:"id_estado"`
	UserName       string              `json:"usuario"`
	Status         string              `json:"estado"`
	IncidentType   string              `json:"tipo_incidente"`
	Severity       string              `json:"severidad"`
}

// Ownership returns who the report belongs to for access decisions.
func (r Report) Ownership() auth.Ownership {
	return auth.Ownership{OwnerUser: r.UserID, OwnerOrg: r.OrganizationID}
}

// NewReport is a validated report ready to be stored. Owner has already been
// decided by the access policy.
type NewReport struct {
	Owner          auth.Ownership
	IncidentTypeID int64
	SeverityID     int64
	Description    string
	Address        *string
	Latitude       decimal.NullDecimal
	Longitude      decimal.NullDecimal
	ImageURL       *string
	Source         string
}

// StatusChange moves a report to a new state on behalf of ActorID.
type StatusChange struct {
	ReportID    int64
	NewStatusID int64
	ActorID     int64
	Comment     *string
}

// Transition is the outcome of a stored StatusChange.
type Transition struct {
	Report           Report
	PreviousStatusID int64
}

// HistoryEntry is one row of a report's state history.
type HistoryEntry struct {
	ID               int64     `json:"id_historial"`
	PreviousStatusID *int64    `json:"estado_anterior"`
	NewStatusID      int64     `json:"estado_nuevo"`
	Comment          *string   `json:"comentario"`
	ActorID          int64     `json:"id_usuario_accion"`
	ActorName        string    `json:"usuario_accion"`
	ChangedAt        time.Time `json:"fecha_cambio"`
}

// Repository is the persistence needed by Service. Lookups of a missing
// report return ErrNotFound.
type Repository interface {
	ListReports(ctx context.Context, scope auth.Scope) ([]Report, error)
	GetReport(ctx context.Context, id int64) (Report, error)
	CreateReport(ctx context.Context, in NewReport) (Report, error)
	// ChangeReportStatus updates the state, appends history and notifies the
	// owner atomically.
	ChangeReportStatus(ctx context.Context, change StatusChange) (Transition, error)
	ReportHistory(ctx context.Context, id int64) ([]HistoryEntry, error)
}
