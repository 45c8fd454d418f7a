package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/reports"
)

const selectReportDetail = `select
	r.id_reporte, r.descripcion, r.direccion, r.latitud, r.longitud, r.imagen_url, r.fuente_reporte,
	r.created_at, r.id_usuario, r.id_entidad, r.id_tipo_incidente, r.id_severidad, r.id_estado,
	u.nombre_completo, er.nombre, ti.nombre, s.nombre
	from reportes r
	join usuarios u on r.id_usuario = u.id_usuario
	join estado_reporte er on r.id_estado = er.id_estado
	join tipo_incidente ti on r.id_tipo_incidente = ti.id_tipo_incidente
	join severidad s on r.id_severidad = s.id_severidad`

var _ reports.Repository = (*Store)(nil)

// ListReports returns the reports inside scope, newest first.
func (s *Store) ListReports(ctx context.Context, scope auth.Scope) ([]reports.Report, error) {
	query := selectReportDetail
	var args []any
	switch scope.Kind {
	case auth.ScopeAll:
	case auth.ScopeUser:
		query += ` where r.id_usuario = ?`
		args = append(args, scope.UserID)
	case auth.ScopeOrganization:
		query += ` where r.id_entidad = ?`
		args = append(args, scope.OrganizationID)
	default:
		return nil, fmt.Errorf("store: unsupported scope kind %d", scope.Kind)
	}
	query += ` order by r.created_at desc, r.id_reporte desc`

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify("list reports", err)
	}
	defer rows.Close()
	out := make([]reports.Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, classify("list reports", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list reports", err)
	}
	return out, nil
}

// GetReport returns one report or reports.ErrNotFound.
func (s *Store) GetReport(ctx context.Context, id int64) (reports.Report, error) {
	rep, err := s.getReport(ctx, s.db, id)
	if err != nil && !errors.Is(err, reports.ErrNotFound) {
		return reports.Report{}, classify("get report", err)
	}
	return rep, err
}

// CreateReport inserts a report in the initial state and returns it with its
// catalog labels.
func (s *Store) CreateReport(ctx context.Context, in reports.NewReport) (reports.Report, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reports.Report{}, classify("create report", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insertID(ctx, tx, `insert into reportes (
		id_usuario, id_entidad, id_tipo_incidente, id_severidad, id_estado,
		descripcion, direccion, latitud, longitud, imagen_url, fuente_reporte
	) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, "id_reporte",
		in.Owner.OwnerUser, in.Owner.OwnerOrg, in.IncidentTypeID, in.SeverityID, reports.InitialStatusID,
		in.Description, in.Address, in.Latitude, in.Longitude, in.ImageURL, in.Source)
	if err != nil {
		return reports.Report{}, classify("create report", err)
	}
	rep, err := s.getReport(ctx, tx, id)
	if err != nil {
		return reports.Report{}, classify("create report", err)
	}
	if err := tx.Commit(); err != nil {
		return reports.Report{}, classify("create report", err)
	}
	return rep, nil
}

// ChangeReportStatus locks the report, moves it to change.NewStatusID,
// appends a history row and notifies the owner in one transaction.
func (s *Store) ChangeReportStatus(ctx context.Context, change reports.StatusChange) (reports.Transition, error) {
	const op = "change report status"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reports.Transition{}, classify(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`select id_estado from reportes where id_reporte = ? for update`), change.ReportID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return reports.Transition{}, reports.ErrNotFound
	}
	if err != nil {
		return reports.Transition{}, classify(op, err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`update reportes set id_estado = ? where id_reporte = ?`),
		change.NewStatusID, change.ReportID); err != nil {
		return reports.Transition{}, classify(op, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`insert into historial_reportes
		(id_reporte, estado_anterior, estado_nuevo, comentario, id_usuario_accion)
		values (?, ?, ?, ?, ?)`),
		change.ReportID, previous, change.NewStatusID, change.Comment, change.ActorID); err != nil {
		return reports.Transition{}, classify(op, err)
	}

	rep, err := s.getReport(ctx, tx, change.ReportID)
	if err != nil {
		return reports.Transition{}, classify(op, err)
	}
	msg := fmt.Sprintf("Tu reporte #%d cambió a estado %s", rep.ID, rep.Status)
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`insert into notificaciones
		(id_usuario, id_reporte, tipo_notificacion, mensaje, leida)
		values (?, ?, ?, ?, ?)`),
		rep.UserID, rep.ID, reports.NotificationKindStatusChange, msg, false); err != nil {
		return reports.Transition{}, classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return reports.Transition{}, classify(op, err)
	}
	return reports.Transition{Report: rep, PreviousStatusID: previous}, nil
}

// ReportHistory lists the state changes of a report, newest first.
func (s *Store) ReportHistory(ctx context.Context, id int64) ([]reports.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`select
		h.id_historial, h.estado_anterior, h.estado_nuevo, h.comentario, h.id_usuario_accion,
		u.nombre_completo, h.fecha_cambio
		from historial_reportes h
		join usuarios u on u.id_usuario = h.id_usuario_accion
		where h.id_reporte = ?
		order by h.fecha_cambio desc, h.id_historial desc`), id)
	if err != nil {
		return nil, classify("report history", err)
	}
	defer rows.Close()
	out := make([]reports.HistoryEntry, 0)
	for rows.Next() {
		var (
			e       reports.HistoryEntry
			prev    sql.NullInt64
			comment sql.NullString
		)
		if err := rows.Scan(&e.ID, &prev, &e.NewStatusID, &comment, &e.ActorID, &e.ActorName, &e.ChangedAt); err != nil {
			return nil, classify("report history", err)
		}
		e.PreviousStatusID = nullID(prev)
		e.Comment = nullString(comment)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("report history", err)
	}
	return out, nil
}

func (s *Store) getReport(ctx context.Context, q queryer, id int64) (reports.Report, error) {
	row := q.QueryRowContext(ctx, s.dialect.Rebind(selectReportDetail+` where r.id_reporte = ?`), id)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reports.Report{}, reports.ErrNotFound
	}
	return rep, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (reports.Report, error) {
	var (
		r       reports.Report
		address sql.NullString
		image   sql.NullString
		org     sql.NullInt64
	)
	err := sc.Scan(
		&r.ID, &r.Description, &address, &r.Latitude, &r.Longitude, &image, &r.Source,
		&r.CreatedAt, &r.UserID, &org, &r.IncidentTypeID, &r.SeverityID, &r.StatusID,
		&r.UserName, &r.Status, &r.IncidentType, &r.Severity,
	)
	if err != nil {
		return reports.Report{}, err
	}
	r.Address = nullString(address)
	r.ImageURL = nullString(image)
	r.OrganizationID = nullID(org)
	return r, nil
}
