package auth

import "time"

// PrincipalType distinguishes the two authenticable identity classes.
type PrincipalType string

const (
	// PrincipalAdmin is a panel user carrying a role.
	PrincipalAdmin PrincipalType = "admin"
	// PrincipalGuardian is the second principal class; guardians have no role
	// hierarchy and are always scoped to their tenant.
	PrincipalGuardian PrincipalType = "guardian"
)

// Valid reports whether t names a known principal class.
func (t PrincipalType) Valid() bool {
	return t == PrincipalAdmin || t == PrincipalGuardian
}

// Account statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Panel roles. RoleSuperuser is the only role exempt from tenant scoping.
const (
	RoleSuperuser = "superuser"
	RoleManager   = "manager"
	RoleOperator  = "operator"
)

// PanelRoles is the full set of roles a panel account may carry.
var PanelRoles = []string{RoleSuperuser, RoleManager, RoleOperator}

// TenantExempt reports whether the role is issued tokens without a tenant scope.
func TenantExempt(role string) bool {
	return role == RoleSuperuser
}

// CredentialRecord is one principal's stored credential as read from the
// store. TenantID and Role are zero-valued where they do not apply.
type CredentialRecord struct {
	ID                 int64
	PrincipalType      PrincipalType
	Login              string
	PasswordDigest     string
	Role               string
	TenantID           int64
	Status             string
	MustRotatePassword bool
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Identity is the immutable context handed to downstream authorization after
// a token has been verified against live account state.
type Identity struct {
	ID            int64
	Login         string
	PrincipalType PrincipalType
	Role          string
	Status        string
	TenantID      int64
}

// Summary is the sanitized principal view returned with a fresh token. It
// never carries the password digest.
type Summary struct {
	ID                 int64         `json:"id"`
	Login              string        `json:"login"`
	PrincipalType      PrincipalType `json:"principal_type"`
	Role               string        `json:"role,omitempty"`
	TenantID           int64         `json:"tenant_id,omitempty"`
	MustRotatePassword bool          `json:"must_rotate_password,omitempty"`
}
