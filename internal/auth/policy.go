package auth

// Operation is an action the caller wants to perform on a scoped record.
type Operation int

const (
	OpList Operation = iota + 1
	OpRead
	OpCreate
	OpChangeStatus
	// OpAcknowledge covers personal inbox updates such as marking a
	// notification read. Only the addressee may do it.
	OpAcknowledge
)

func (o Operation) String() string {
	switch o {
	case OpList:
		return "list"
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpChangeStatus:
		return "change_status"
	case OpAcknowledge:
		return "acknowledge"
	default:
		return "unknown"
	}
}

// Ownership identifies who a record belongs to.
type Ownership struct {
	OwnerUser int64
	OwnerOrg  *int64
}

// OwnerClaim is the owner a client asked for on create. Nil fields were not
// supplied.
type OwnerClaim struct {
	User *int64
	Org  *int64
}

// Authorize decides whether id may perform op on a record owned by res.
// The result is nil or a *ForbiddenError.
func Authorize(id Identity, op Operation, res Ownership) error {
	switch id.Role {
	case RoleCitizen:
		return authorizeCitizen(id, op, res)
	case RoleEntity:
		return authorizeEntity(id, op, res)
	case RoleModerator, RoleAdministrator:
		return authorizeStaff(id, op, res)
	default:
		return Forbidden(ReasonUnknownRole)
	}
}

func authorizeCitizen(id Identity, op Operation, res Ownership) error {
	switch op {
	case OpList, OpRead, OpAcknowledge:
		if res.OwnerUser != id.UserID {
			return Forbidden(ReasonOwnershipMismatch)
		}
		return nil
	case OpCreate:
		return nil
	default:
		return Forbidden(ReasonRoleNotPermitted)
	}
}

func authorizeEntity(id Identity, op Operation, res Ownership) error {
	if op == OpAcknowledge {
		if res.OwnerUser != id.UserID {
			return Forbidden(ReasonOwnershipMismatch)
		}
		return nil
	}
	if id.OrganizationID == nil {
		return Forbidden(ReasonMissingOrganization)
	}
	switch op {
	case OpList, OpRead, OpChangeStatus:
		if res.OwnerOrg == nil || *res.OwnerOrg != *id.OrganizationID {
			return Forbidden(ReasonOwnershipMismatch)
		}
		return nil
	case OpCreate:
		return nil
	default:
		return Forbidden(ReasonRoleNotPermitted)
	}
}

func authorizeStaff(id Identity, op Operation, res Ownership) error {
	switch op {
	case OpList, OpRead, OpChangeStatus:
		return nil
	case OpAcknowledge:
		if res.OwnerUser != id.UserID {
			return Forbidden(ReasonOwnershipMismatch)
		}
		return nil
	default:
		return Forbidden(ReasonRoleNotPermitted)
	}
}

// AuthorizeCreate decides whether id may create a record and returns the
// ownership the record must be stored with. The owner always comes from the
// identity; a claim naming anyone else is an impersonation attempt.
func AuthorizeCreate(id Identity, claim OwnerClaim) (Ownership, error) {
	if err := Authorize(id, OpCreate, Ownership{}); err != nil {
		return Ownership{}, err
	}
	if claim.User != nil && *claim.User != id.UserID {
		return Ownership{}, Forbidden(ReasonImpersonationAttempt)
	}
	if claim.Org != nil && (id.OrganizationID == nil || *claim.Org != *id.OrganizationID) {
		return Ownership{}, Forbidden(ReasonImpersonationAttempt)
	}
	return Ownership{OwnerUser: id.UserID, OwnerOrg: cloneID(id.OrganizationID)}, nil
}

// ScopeKind selects which rows a listing may return.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota + 1
	ScopeUser
	ScopeOrganization
)

// Scope is the list rule of Authorize expressed as a row filter.
type Scope struct {
	Kind           ScopeKind
	UserID         int64
	OrganizationID int64
}

// ScopeFor returns the listing filter for id.
func ScopeFor(id Identity) (Scope, error) {
	switch id.Role {
	case RoleCitizen:
		return Scope{Kind: ScopeUser, UserID: id.UserID}, nil
	case RoleEntity:
		if id.OrganizationID == nil {
			return Scope{}, Forbidden(ReasonMissingOrganization)
		}
		return Scope{Kind: ScopeOrganization, OrganizationID: *id.OrganizationID}, nil
	case RoleModerator, RoleAdministrator:
		return Scope{Kind: ScopeAll}, nil
	default:
		return Scope{}, Forbidden(ReasonUnknownRole)
	}
}

// Allows reports whether a record owned by res falls inside the scope.
func (s Scope) Allows(res Ownership) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeUser:
		return res.OwnerUser == s.UserID
	case ScopeOrganization:
		return res.OwnerOrg != nil && *res.OwnerOrg == s.OrganizationID
	default:
		return false
	}
}
