package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnknownCatalog is returned for catalog names outside the fixed set.
var ErrUnknownCatalog = errors.New("store: unknown catalog")

// Catalog names a reference table exposed read-only to clients.
type Catalog string

const (
	CatalogReportStatus     Catalog = "estado-reporte"
	CatalogIncidentType     Catalog = "tipo-incidente"
	CatalogSeverity         Catalog = "severidad"
	CatalogIncidentCategory Catalog = "categoria-incidente"
)

type catalogTable struct {
	table string
	key   string
}

var catalogTables = map[Catalog]catalogTable{
	CatalogReportStatus:     {table: "estado_reporte", key: "id_estado"},
	CatalogIncidentType:     {table: "tipo_incidente", key: "id_tipo_incidente"},
	CatalogSeverity:         {table: "severidad", key: "id_severidad"},
	CatalogIncidentCategory: {table: "categoria_incidente", key: "id_categoria"},
}

// ParseCatalog validates a catalog name taken from a URL.
func ParseCatalog(name string) (Catalog, error) {
	c := Catalog(name)
	if _, ok := catalogTables[c]; !ok {
		return "", ErrUnknownCatalog
	}
	return c, nil
}

// CatalogEntry is one row of a reference table. It encodes with the table's
// own key column name, e.g. {"id_severidad": 2, "nombre": "ALTA"}.
type CatalogEntry struct {
	Key  string
	ID   int64
	Name string
}

func (e CatalogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{e.Key: e.ID, "nombre": e.Name})
}

// ListCatalog returns every row of c ordered by id.
func (s *Store) ListCatalog(ctx context.Context, c Catalog) ([]CatalogEntry, error) {
	t, ok := catalogTables[c]
	if !ok {
		return nil, ErrUnknownCatalog
	}
	// table and key come from the fixed map above
	rows, err := s.db.QueryContext(ctx, `select `+t.key+`, nombre from `+t.table+` order by `+t.key)
	if err != nil {
		return nil, classify("list catalog", err)
	}
	defer rows.Close()
	out := make([]CatalogEntry, 0)
	for rows.Next() {
		e := CatalogEntry{Key: t.key}
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, classify("list catalog", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list catalog", err)
	}
	return out, nil
}
