package store

import (
	"context"
	"database/sql"
	"errors"

	"geovisor.org/internal/auth"
)

const (
	identityColumns  = `id_usuario, correo, nombre_completo, id_rol, id_estado_cuenta, id_entidad`
	selectIdentity   = `select ` + identityColumns + ` from usuarios`
	selectCredential = `select ` + identityColumns + `, password_hash from usuarios`
)

// FindByID loads the identity stored for userID. The password digest is not
// read.
func (s *Store) FindByID(ctx context.Context, userID int64) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(selectIdentity+` where id_usuario = ?`), userID)
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, classify("find user", err)
	}
	return id, nil
}

// FindByEmail loads the credential whose correo equals email exactly. MySQL
// collations compare case-insensitively, so the match is confirmed in Go.
func (s *Store) FindByEmail(ctx context.Context, email string) (auth.Credential, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(selectCredential+` where correo = ? limit 1`), email)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credential{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Credential{}, classify("find user by email", err)
	}
	if cred.Email != email {
		return auth.Credential{}, auth.ErrNotFound
	}
	return cred, nil
}

// SetPasswordHash replaces the stored digest of userID.
func (s *Store) SetPasswordHash(ctx context.Context, userID int64, hash string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`update usuarios set password_hash = ? where id_usuario = ?`), hash, userID)
	if err != nil {
		return classify("set password hash", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("set password hash", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanCredential(row *sql.Row) (auth.Credential, error) {
	var hash sql.NullString
	id, err := scanIdentity(row, &hash)
	if err != nil {
		return auth.Credential{}, err
	}
	return auth.Credential{Identity: id, PasswordHash: hash.String}, nil
}

// scanIdentity reads identityColumns followed by any extra destinations.
func scanIdentity(row *sql.Row, extra ...any) (auth.Identity, error) {
	var (
		id     auth.Identity
		role   int64
		status int64
		org    sql.NullInt64
	)
	dest := append([]any{&id.UserID, &id.Email, &id.FullName, &role, &status, &org}, extra...)
	if err := row.Scan(dest...); err != nil {
		return auth.Identity{}, err
	}
	id.Role = auth.RoleFromCode(role)
	id.Status = auth.StatusFromCode(status)
	id.OrganizationID = nullID(org)
	return id, nil
}

func nullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
