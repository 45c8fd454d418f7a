package auth

// Role is the closed set of account roles stored in usuarios.id_rol.
type Role int

const (
	RoleUnknown Role = iota
	RoleCitizen
	RoleEntity
	RoleModerator
	RoleAdministrator
)

// RoleFromCode maps a stored role code to a Role. Codes outside the known set
// yield RoleUnknown.
func RoleFromCode(code int64) Role {
	switch code {
	case 1:
		return RoleCitizen
	case 2:
		return RoleEntity
	case 3:
		return RoleModerator
	case 4:
		return RoleAdministrator
	default:
		return RoleUnknown
	}
}

// Code returns the numeric code persisted for the role.
func (r Role) Code() int {
	return int(r)
}

func (r Role) String() string {
	switch r {
	case RoleCitizen:
		return "CITIZEN"
	case RoleEntity:
		return "ENTITY"
	case RoleModerator:
		return "MODERATOR"
	case RoleAdministrator:
		return "ADMINISTRATOR"
	default:
		return "UNKNOWN"
	}
}

// AccountStatus is the closed set of account states stored in usuarios.id_estado_cuenta.
type AccountStatus int

const (
	StatusUnknown AccountStatus = iota
	StatusActive
	StatusInactive
	StatusSuspended
	StatusPending
)

// StatusFromCode maps a stored status code to an AccountStatus.
func StatusFromCode(code int64) AccountStatus {
	switch code {
	case 1:
		return StatusActive
	case 2:
		return StatusInactive
	case 3:
		return StatusSuspended
	case 4:
		return StatusPending
	default:
		return StatusUnknown
	}
}

func (s AccountStatus) Code() int {
	return int(s)
}

func (s AccountStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	case StatusSuspended:
		return "SUSPENDED"
	case StatusPending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// Identity is the authenticated caller as currently stored. It is loaded on
// every request and never cached.
type Identity struct {
	UserID         int64
	Email          string
	FullName       string
	Role           Role
	Status         AccountStatus
	OrganizationID *int64
}

// Public returns the externally visible view of the identity.
func (i Identity) Public() PublicIdentity {
	return PublicIdentity{
		UserID:         i.UserID,
		RoleID:         i.Role.Code(),
		Role:           i.Role.String(),
		StatusID:       i.Status.Code(),
		Status:         i.Status.String(),
		OrganizationID: cloneID(i.OrganizationID),
		FullName:       i.FullName,
		Email:          i.Email,
	}
}

// PublicIdentity is the identity as returned to clients. It never carries the
// password hash.
type PublicIdentity struct {
	UserID         int64  `json:"id_usuario"`
	RoleID         int    `json:"id_rol"`
	Role           string `json:"rol"`
	StatusID       int    `json:"id_estado_cuenta"`
	Status         string `json:"estado_cuenta"`
	OrganizationID *int64 `json:"id_entidad"`
	FullName       string `json:"nombre_completo"`
	Email          string `json:"correo"`
}

// Credential is an identity together with its stored password digest.
type Credential struct {
	Identity
	PasswordHash string
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
