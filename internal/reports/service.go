package reports

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/obs"
	"geovisor.org/internal/stream"
)

const (
	maxDescriptionLen = 5000
	maxAddressLen     = 255
	maxImageURLLen    = 500
	maxSourceLen      = 50
	maxCommentLen     = 500
)

// Publisher receives status change events.
type Publisher interface {
	Publish(evt stream.StatusEvent)
}

// CreateInput is a report creation request as received from a client.
type CreateInput struct {
	Owner          auth.OwnerClaim
	IncidentTypeID int64
	SeverityID     int64
	Description    string
	Address        *string
	Latitude       decimal.NullDecimal
	Longitude      decimal.NullDecimal
	ImageURL       *string
	Source         string
}

// StatusInput is a status change request as received from a client. ActorID
// is optional and must name the caller when present.
type StatusInput struct {
	NewStatusID int64
	ActorID     *int64
	Comment     *string
}

// Service applies the access policy around report persistence.
type Service struct {
	repo   Repository
	events Publisher
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithPublisher streams status changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the reports visible to id, newest first.
func (s *Service) List(ctx context.Context, id auth.Identity) ([]Report, error) {
	scope, err := auth.ScopeFor(id)
	recordDecision(auth.OpList, err)
	if err != nil {
		return nil, err
	}
	return s.repo.ListReports(ctx, scope)
}

// Get returns one report if id may read it.
func (s *Service) Get(ctx context.Context, id auth.Identity, reportID int64) (Report, error) {
	if err := precheck(id, auth.OpRead); err != nil {
		return Report{}, err
	}
	rep, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if err := authorize(id, auth.OpRead, rep.Ownership()); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// Create stores a report owned by the caller.
func (s *Service) Create(ctx context.Context, id auth.Identity, in CreateInput) (Report, error) {
	if err := in.validate(); err != nil {
		return Report{}, err
	}
	owner, err := auth.AuthorizeCreate(id, in.Owner)
	recordDecision(auth.OpCreate, err)
	if err != nil {
		return Report{}, err
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = DefaultSource
	}
	return s.repo.CreateReport(ctx, NewReport{
		Owner:          owner,
		IncidentTypeID: in.IncidentTypeID,
		SeverityID:     in.SeverityID,
		Description:    in.Description,
		Address:        in.Address,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		ImageURL:       in.ImageURL,
		Source:         source,
	})
}

// ChangeStatus moves a report to a new state. The history row always names
// the caller as the acting user.
func (s *Service) ChangeStatus(ctx context.Context, id auth.Identity, reportID int64, in StatusInput) (Report, error) {
	if in.NewStatusID < 1 {
		return Report{}, fmt.Errorf("%w: id_estado_nuevo must be >= 1", ErrInvalidInput)
	}
	if in.Comment != nil && utf8.RuneCountInString(*in.Comment) > maxCommentLen {
		return Report{}, fmt.Errorf("%w: comentario exceeds %d characters", ErrInvalidInput, maxCommentLen)
	}
	if err := precheck(id, auth.OpChangeStatus); err != nil {
		return Report{}, err
	}
	rep, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if err := authorize(id, auth.OpChangeStatus, rep.Ownership()); err != nil {
		return Report{}, err
	}
	if in.ActorID != nil && *in.ActorID != id.UserID {
		recordDecision(auth.OpChangeStatus, auth.Forbidden(auth.ReasonImpersonationAttempt))
		return Report{}, auth.Forbidden(auth.ReasonImpersonationAttempt)
	}

	tr, err := s.repo.ChangeReportStatus(ctx, StatusChange{
		ReportID:    reportID,
		NewStatusID: in.NewStatusID,
		ActorID:     id.UserID,
		Comment:     in.Comment,
	})
	if err != nil {
		return Report{}, err
	}
	if s.events != nil {
		s.events.Publish(stream.StatusEvent{
			ReportID:         tr.Report.ID,
			OwnerUser:        tr.Report.UserID,
			OwnerOrg:         tr.Report.OrganizationID,
			PreviousStatusID: tr.PreviousStatusID,
			StatusID:         tr.Report.StatusID,
			Status:           tr.Report.Status,
			ActorID:          id.UserID,
			At:               s.now().UTC(),
		})
	}
	return tr.Report, nil
}

// History returns the state history of a report the caller may read.
func (s *Service) History(ctx context.Context, id auth.Identity, reportID int64) ([]HistoryEntry, error) {
	if _, err := s.Get(ctx, id, reportID); err != nil {
		return nil, err
	}
	return s.repo.ReportHistory(ctx, reportID)
}

func (in CreateInput) validate() error {
	switch {
	case in.IncidentTypeID < 1:
		return fmt.Errorf("%w: id_tipo_incidente must be >= 1", ErrInvalidInput)
	case in.SeverityID < 1:
		return fmt.Errorf("%w: id_severidad must be >= 1", ErrInvalidInput)
	case strings.TrimSpace(in.Description) == "":
		return fmt.Errorf("%w: descripcion is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Description) > maxDescriptionLen:
		return fmt.Errorf("%w: descripcion exceeds %d characters", ErrInvalidInput, maxDescriptionLen)
	case in.Address != nil && utf8.RuneCountInString(*in.Address) > maxAddressLen:
		return fmt.Errorf("%w: direccion exceeds %d characters", ErrInvalidInput, maxAddressLen)
	case in.ImageURL != nil && utf8.RuneCountInString(*in.ImageURL) > maxImageURLLen:
		return fmt.Errorf("%w: imagen_url exceeds %d characters", ErrInvalidInput, maxImageURLLen)
	case utf8.RuneCountInString(in.Source) > maxSourceLen:
		return fmt.Errorf("%w: fuente_reporte exceeds %d characters", ErrInvalidInput, maxSourceLen)
	}
	if err := validCoordinate(in.Latitude, 90); err != nil {
		return fmt.Errorf("%w: latitud %v", ErrInvalidInput, err)
	}
	if err := validCoordinate(in.Longitude, 180); err != nil {
		return fmt.Errorf("%w: longitud %v", ErrInvalidInput, err)
	}
	return nil
}

func validCoordinate(v decimal.NullDecimal, limit int64) error {
	if !v.Valid {
		return nil
	}
	bound := decimal.NewFromInt(limit)
	if v.Decimal.Abs().GreaterThan(bound) {
		return fmt.Errorf("out of range [-%d, %d]", limit, limit)
	}
	return nil
}

// precheck refuses identities with no usable scope before any lookup.
func precheck(id auth.Identity, op auth.Operation) error {
	if _, err := auth.ScopeFor(id); err != nil {
		recordDecision(op, err)
		return err
	}
	return nil
}

func authorize(id auth.Identity, op auth.Operation, res auth.Ownership) error {
	err := auth.Authorize(id, op, res)
	recordDecision(op, err)
	return err
}

func recordDecision(op auth.Operation, err error) {
	reason, _ := auth.ReasonOf(err)
	label := ""
	if reason != 0 {
		label = reason.String()
	}
	obs.RecordDecision(op.String(), err == nil, label)
}
