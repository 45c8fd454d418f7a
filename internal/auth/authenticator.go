package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  PublicIdentity
}

// Authenticator exchanges email and password for an access token.
type Authenticator struct {
	store  CredentialStore
	codec  *Codec
	hasher PasswordHasher
}

// AuthenticatorOption configures Authenticator behavior.
type AuthenticatorOption func(*Authenticator)

// WithHasher replaces the default PBKDF2 password scheme.
func WithHasher(h PasswordHasher) AuthenticatorOption {
	return func(a *Authenticator) {
		if h != nil {
			a.hasher = h
		}
	}
}

// NewAuthenticator wires the credential store and token codec.
func NewAuthenticator(store CredentialStore, codec *Codec, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		store:  store,
		codec:  codec,
		hasher: PBKDF2Hasher{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login checks, in order: the account exists, it is active, its digest uses
// the current scheme, and the password matches. Unknown email and wrong
// password are indistinguishable to the caller.
func (a *Authenticator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	cred, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth: load credential: %w", err)
	}
	if cred.Status != StatusActive {
		return LoginResult{}, ErrAccountNotActive
	}
	if !a.hasher.Recognizes(cred.PasswordHash) {
		return LoginResult{}, ErrHashNotMigrated
	}
	ok, err := a.hasher.Verify(cred.PasswordHash, password)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, exp, err := a.codec.Encode(Claims{UserID: cred.UserID, RoleID: cred.Role.Code()})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		ExpiresAt: exp,
		Identity:  cred.Identity.Public(),
	}, nil
}
