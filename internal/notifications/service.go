// Package notifications exposes the per-user inbox filled by report status
// changes.
package notifications

import (
	"context"
	"errors"
	"time"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/obs"
)

var ErrNotFound = errors.New("notifications: not found")

// Notification is one inbox entry.
type Notification struct {
	ID       int64     `json:"id_notificacion"`
	UserID   int64     `json:"id_usuario"`
	ReportID *int64    `json:"id_reporte"`
	Kind     string    `json:"tipo_notificacion"`
	Message  string    `json:"mensaje"`
	Read     bool      `json:"leida"`
	SentAt   time.Time `json:"fecha_envio"`
}

// Repository is the persistence needed by Service.
type Repository interface {
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error)
	// NotificationOwner returns the addressee of a notification or ErrNotFound.
	NotificationOwner(ctx context.Context, id int64) (int64, error)
	SetNotificationRead(ctx context.Context, id int64, read bool) (Notification, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the inbox of userID. Callers may list their own inbox; staff
// may read another user's.
func (s *Service) List(ctx context.Context, id auth.Identity, userID int64, unreadOnly bool) ([]Notification, error) {
	if userID == 0 {
		userID = id.UserID
	}
	if userID != id.UserID {
		err := auth.Authorize(id, auth.OpRead, auth.Ownership{OwnerUser: userID})
		record(auth.OpRead, err)
		if err != nil {
			return nil, err
		}
	}
	return s.repo.ListNotifications(ctx, userID, unreadOnly)
}

// MarkRead flags a notification as read or unread. Only its addressee may do
// so.
func (s *Service) MarkRead(ctx context.Context, id auth.Identity, notificationID int64, read bool) (Notification, error) {
	owner, err := s.repo.NotificationOwner(ctx, notificationID)
	if err != nil {
		return Notification{}, err
	}
	err = auth.Authorize(id, auth.OpAcknowledge, auth.Ownership{OwnerUser: owner})
	record(auth.OpAcknowledge, err)
	if err != nil {
		return Notification{}, err
	}
	return s.repo.SetNotificationRead(ctx, notificationID, read)
}

func record(op auth.Operation, err error) {
	label := ""
	if reason, ok := auth.ReasonOf(err); ok {
		label = reason.String()
	}
	obs.RecordDecision(op.String(), err == nil, label)
}
