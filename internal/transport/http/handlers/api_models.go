package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the readiness of each backing dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RolePayload describes a role returned by the API. Permissions carry the
// full nested tree so admin tooling can render and edit it.
type RolePayload struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description *string               `json:"description,omitempty"`
	Permissions domain.PermissionTree `json:"permissions"`
	IsSystem    bool                  `json:"is_system"`
	IsActive    bool                  `json:"is_active"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func newRolePayload(role *domain.Role) RolePayload {
	return RolePayload{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

// RoleCreateRequest defines the payload for creating a role.
type RoleCreateRequest struct {
	Name        string                `json:"name" binding:"required"`
	Description *string               `json:"description"`
	Permissions domain.PermissionTree `json:"permissions"`
}

// RoleUpdateRequest defines the partial-update payload for a role. Absent
// fields leave the stored value untouched.
type RoleUpdateRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Permissions *domain.PermissionTree `json:"permissions"`
}

// RoleListResponse wraps the role collection.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// AssignRoleRequest defines the payload for assigning a role to a principal.
type AssignRoleRequest struct {
	Role      string     `json:"role" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// AssignmentPayload describes a role assignment row.
type AssignmentPayload struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principal_id"`
	RoleID      string     `json:"role_id"`
	AssignedBy  *string    `json:"assigned_by,omitempty"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

func newAssignmentPayload(assignment *domain.RoleAssignment) AssignmentPayload {
	return AssignmentPayload{
		ID:          assignment.ID,
		PrincipalID: assignment.PrincipalID,
		RoleID:      assignment.RoleID,
		AssignedBy:  assignment.AssignedBy,
		AssignedAt:  assignment.AssignedAt,
		ExpiresAt:   assignment.ExpiresAt,
		IsActive:    assignment.IsActive,
	}
}

// AssignRoleResponse returns the granted assignment plus any assignments the
// grant superseded.
type AssignRoleResponse struct {
	Assignment AssignmentPayload   `json:"assignment"`
	Superseded []AssignmentPayload `json:"superseded,omitempty"`
}

// AssignmentListResponse wraps a principal's assignment history.
type AssignmentListResponse struct {
	PrincipalID string              `json:"principal_id"`
	Assignments []AssignmentPayload `json:"assignments"`
}

// PrincipalRolesResponse lists the active roles resolved for a principal.
type PrincipalRolesResponse struct {
	PrincipalID string        `json:"principal_id"`
	Roles       []RolePayload `json:"roles"`
}

// AccessCheckResponse answers a permission diagnostic query.
type AccessCheckResponse struct {
	PrincipalID string `json:"principal_id"`
	Permission  string `json:"permission"`
	Allowed     bool   `json:"allowed"`
}
