package store

import (
	"context"
	"database/sql"
	"errors"

	"geovisor.org/internal/notifications"
)

const selectNotification = `select id_notificacion, id_usuario, id_reporte, tipo_notificacion, mensaje, leida, fecha_envio
	from notificaciones`

var _ notifications.Repository = (*Store)(nil)

// ListNotifications returns the inbox of userID, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]notifications.Notification, error) {
	query := selectNotification + ` where id_usuario = ?`
	if unreadOnly {
		query += ` and leida = ?`
	}
	query += ` order by fecha_envio desc, id_notificacion desc`
	args := []any{userID}
	if unreadOnly {
		args = append(args, false)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify("list notifications", err)
	}
	defer rows.Close()
	out := make([]notifications.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, classify("list notifications", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list notifications", err)
	}
	return out, nil
}

// NotificationOwner returns the addressee of notification id.
func (s *Store) NotificationOwner(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`select id_usuario from notificaciones where id_notificacion = ?`), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notifications.ErrNotFound
	}
	if err != nil {
		return 0, classify("notification owner", err)
	}
	return owner, nil
}

// SetNotificationRead updates the read flag and returns the stored row.
func (s *Store) SetNotificationRead(ctx context.Context, id int64, read bool) (notifications.Notification, error) {
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(`update notificaciones set leida = ? where id_notificacion = ?`), read, id); err != nil {
		return notifications.Notification{}, classify("mark notification", err)
	}
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(selectNotification+` where id_notificacion = ?`), id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notifications.Notification{}, notifications.ErrNotFound
	}
	if err != nil {
		return notifications.Notification{}, classify("mark notification", err)
	}
	return n, nil
}

func scanNotification(sc scanner) (notifications.Notification, error) {
	var (
		n      notifications.Notification
		report sql.NullInt64
	)
	if err := sc.Scan(&n.ID, &n.UserID, &report, &n.Kind, &n.Message, &n.Read, &n.SentAt); err != nil {
		return notifications.Notification{}, err
	}
	n.ReportID = nullID(report)
	return n, nil
}
