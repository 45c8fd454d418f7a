package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind buckets database failures the way the API reports them.
type Kind int

const (
	// KindSQL covers malformed statements and unexpected server errors.
	KindSQL Kind = iota + 1
	// KindIntegrity covers foreign key, unique and not-null violations,
	// usually caused by ids in the request that do not exist.
	KindIntegrity
	// KindConnection covers unreachable servers, dropped connections and
	// rejected credentials.
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindIntegrity:
		return "integrity"
	case KindConnection:
		return "connection"
	default:
		return "sql"
	}
}

// Error is a classified database failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the classification of err, if it is a store Error.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

var mysqlIntegrityCodes = map[uint16]struct{}{
	1048: {}, // column cannot be null
	1062: {}, // duplicate entry
	1216: {}, // child row: foreign key constraint fails (legacy)
	1217: {}, // parent row: foreign key constraint fails (legacy)
	1364: {}, // field has no default value
	1451: {}, // cannot delete or update a parent row
	1452: {}, // cannot add or update a child row
}

var mysqlConnectionCodes = map[uint16]struct{}{
	1040: {}, // too many connections
	1044: {}, // access denied for database
	1045: {}, // access denied for user
	1049: {}, // unknown database
}

// classify wraps err as an *Error. Context cancellation and values that are
// already classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: kindFor(err), Op: op, Err: err}
}

func kindFor(err error) Kind {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if _, ok := mysqlIntegrityCodes[myErr.Number]; ok {
			return KindIntegrity
		}
		if _, ok := mysqlConnectionCodes[myErr.Number]; ok {
			return KindConnection
		}
		return KindSQL
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return KindIntegrity
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "28"), pgErr.Code == "3D000":
			return KindConnection
		default:
			return KindSQL
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindConnection
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, context.DeadlineExceeded) {
		return KindConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnection
	}
	return KindSQL
}
