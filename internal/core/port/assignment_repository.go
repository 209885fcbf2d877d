package port

import (
	"context"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
)

// AssignmentRepository persists principal-role links.
type AssignmentRepository interface {
	// Assign executes the supersession transition atomically: every active
	// assignment of the principal is deactivated and the provided assignment
	// inserted. When the target role is already active the call is an
	// idempotent no-op returning the existing row. The returned slice holds
	// the assignments that were deactivated.
	Assign(ctx context.Context, assignment domain.RoleAssignment) (*domain.RoleAssignment, []domain.RoleAssignment, error)

	// Deactivate soft-revokes the active assignment for the principal/role
	// pair and reports whether a row was affected.
	Deactivate(ctx context.Context, principalID, roleID string) (bool, error)

	// ClearExpiry removes the expiry from an assignment (bootstrap repair).
	ClearExpiry(ctx context.Context, assignmentID string) error

	// ListActive returns the principal's active, non-expired assignments.
	ListActive(ctx context.Context, principalID string) ([]domain.RoleAssignment, error)

	// ListByPrincipal returns the full assignment history, newest first.
	ListByPrincipal(ctx context.Context, principalID string) ([]domain.RoleAssignment, error)

	// ListActiveRoles resolves the roles behind the principal's active,
	// non-expired assignments in a single joined query.
	ListActiveRoles(ctx context.Context, principalID string) ([]domain.Role, error)
}
