package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Infrastructure is a water infrastructure asset shown as a map layer.
type Infrastructure struct {
	ID        int64               `json:"id_infraestructura"`
	Name      string              `json:"nombre"`
	Type      *string             `json:"tipo"`
	Latitude  decimal.NullDecimal `json:"latitud"`
	Longitude decimal.NullDecimal `json:"longitud"`
	Source    *string             `json:"fuente"`
	Status    *string             `json:"estado"`
	UpdatedAt *time.Time          `json:"fecha_actualizacion"`
}

// ListInfrastructure returns the infrastructure layer, newest id first.
func (s *Store) ListInfrastructure(ctx context.Context) ([]Infrastructure, error) {
	rows, err := s.db.QueryContext(ctx, `select id_infraestructura, nombre, tipo, latitud, longitud, fuente, estado, fecha_actualizacion
		from infraestructura_hidrica
		order by id_infraestructura desc`)
	if err != nil {
		return nil, classify("list infrastructure", err)
	}
	defer rows.Close()
	out := make([]Infrastructure, 0)
	for rows.Next() {
		var (
			in                   Infrastructure
			kind, source, status sql.NullString
			updated              sql.NullTime
		)
		if err := rows.Scan(&in.ID, &in.Name, &kind, &in.Latitude, &in.Longitude, &source, &status, &updated); err != nil {
			return nil, classify("list infrastructure", err)
		}
		in.Type, in.Source, in.Status = nullString(kind), nullString(source), nullString(status)
		if updated.Valid {
			t := updated.Time
			in.UpdatedAt = &t
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list infrastructure", err)
	}
	return out, nil
}
