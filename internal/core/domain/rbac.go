package domain

import "time"

// Reserved role names shipped with the platform. System roles are protected
// from ordinary mutation; only the reconciler may rewrite them.
const (
	RoleAdmin  = "admin"
	RoleNoRole = "sin_rol"
)

// Role bundles a named permission tree.
type Role struct {
	ID          string
	Name        string
	Description *string
	Permissions PermissionTree
	IsSystem    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleAssignment links a principal to a role. Rows are never deleted; a
// superseded or revoked assignment is flipped inactive with ExpiresAt set,
// which is the audit trail.
type RoleAssignment struct {
	ID          string
	PrincipalID string
	RoleID      string
	AssignedBy  *string
	AssignedAt  time.Time
	ExpiresAt   *time.Time
	IsActive    bool
}

// Expired reports whether the assignment carries an expiry in the past.
func (a RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}
