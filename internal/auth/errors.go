package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountNotActive   = errors.New("auth: account not active")
	ErrHashNotMigrated    = errors.New("auth: password hash not migrated")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrInvalidConfig      = errors.New("auth: invalid config")
)

// Reason explains why an authenticated caller was refused.
type Reason int

const (
	ReasonAccountNotActive Reason = iota + 1
	ReasonRoleNotPermitted
	ReasonOwnershipMismatch
	ReasonImpersonationAttempt
	ReasonMissingOrganization
	ReasonUnknownRole
)

func (r Reason) String() string {
	switch r {
	case ReasonAccountNotActive:
		return "ACCOUNT_NOT_ACTIVE"
	case ReasonRoleNotPermitted:
		return "ROLE_NOT_PERMITTED"
	case ReasonOwnershipMismatch:
		return "OWNERSHIP_MISMATCH"
	case ReasonImpersonationAttempt:
		return "IMPERSONATION_ATTEMPT"
	case ReasonMissingOrganization:
		return "MISSING_ORGANIZATION"
	case ReasonUnknownRole:
		return "UNKNOWN_ROLE"
	default:
		return "FORBIDDEN"
	}
}

// ForbiddenError is returned when the caller is authenticated but not allowed.
// It matches ErrForbidden under errors.Is.
type ForbiddenError struct {
	Reason Reason
}

func (e *ForbiddenError) Error() string {
	return "auth: forbidden: " + e.Reason.String()
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// Forbidden builds a ForbiddenError for reason.
func Forbidden(reason Reason) error {
	return &ForbiddenError{Reason: reason}
}

// ReasonOf extracts the refusal reason carried by err.
func ReasonOf(err error) (Reason, bool) {
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return 0, false
}
