package auth

import "context"

// CredentialStore is the read side of the user table needed by the auth layer.
// Both lookups return ErrNotFound when no row matches.
type CredentialStore interface {
	FindByID(ctx context.Context, userID int64) (Identity, error)
	FindByEmail(ctx context.Context, email string) (Credential, error)
}
