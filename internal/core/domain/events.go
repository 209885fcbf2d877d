package domain

import "time"

// RoleAssignedEvent is emitted after a grant commits, including the roles the
// grant superseded.
type RoleAssignedEvent struct {
	AssignmentID      string    `json:"assignment_id"`
	PrincipalID       string    `json:"principal_id"`
	RoleID            string    `json:"role_id"`
	RoleName          string    `json:"role_name"`
	AssignedBy        *string   `json:"assigned_by,omitempty"`
	SupersededRoleIDs []string  `json:"superseded_role_ids,omitempty"`
	AssignedAt        time.Time `json:"assigned_at"`
}

// RoleRevokedEvent is emitted after an explicit revocation.
type RoleRevokedEvent struct {
	PrincipalID string    `json:"principal_id"`
	RoleID      string    `json:"role_id"`
	RoleName    string    `json:"role_name"`
	RevokedAt   time.Time `json:"revoked_at"`
}

// Role lifecycle actions carried by RoleChangedEvent.
const (
	RoleActionCreated     = "created"
	RoleActionUpdated     = "updated"
	RoleActionDeactivated = "deactivated"
	RoleActionReconciled  = "reconciled"
)

// RoleChangedEvent is emitted on role mutations. Consumers use it for audit
// mirroring and to invalidate role caches on other instances.
type RoleChangedEvent struct {
	RoleID     string    `json:"role_id"`
	RoleName   string    `json:"role_name"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}
