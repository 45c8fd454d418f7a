// Package store implements the relational persistence of the API on
// database/sql. MySQL is the primary target; PostgreSQL is supported through
// pgx for the same schema.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"geovisor.org/internal/config"
)

// Dialect selects placeholder style and the few statements that differ.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "mysql"
}

// Rebind rewrites ? placeholders to $n for PostgreSQL. Question marks inside
// single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for _, r := range query {
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case r == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Store is the SQL-backed repository for users, reports, notifications and
// reference data.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using cfg and tunes the pool. The connection is not verified;
// call Ping.
func Open(cfg config.DBConfig) (*Store, error) {
	dialect := DialectMySQL
	if cfg.Driver == config.DriverPostgres {
		dialect = DialectPostgres
	}
	db, err := sql.Open(dialect.DriverName(), cfg.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("sql.Open(%s): %w", dialect.DriverName(), err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db, dialect), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect) *Store {
	if dialect == "" {
		dialect = DialectMySQL
	}
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity; failures are classified as connection errors.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &Error{Kind: KindConnection, Op: "ping", Err: err}
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertID runs an insert and returns the generated key. PostgreSQL has no
// LastInsertId so the key is read back with RETURNING.
func (s *Store) insertID(ctx context.Context, q queryer, query, pk string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		err := q.QueryRowContext(ctx, s.dialect.Rebind(query)+" returning "+pk, args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
