package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/port"
)

// Authorizer answers request-scoped authorization questions. Checks are
// read-only and resolve the principal's active roles fresh from the store on
// every call; token claims or derived fields are never trusted here.
//
// Checks OR across all active roles even though the assignment path keeps a
// single role active per principal. If exclusivity is ever relaxed the guard
// already handles multiplicity.
type Authorizer struct {
	assignments port.AssignmentRepository
	log         *zap.Logger
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(assignments port.AssignmentRepository, log *zap.Logger) *Authorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authorizer{assignments: assignments, log: log}
}

// HasPermission reports whether any of the principal's active roles grants
// the dot-delimited permission path. Denial is a boolean result, not an
// error; the caller decides how to reject. A principal with no roles, a role
// without the path, and an expired assignment all resolve to false.
func (a *Authorizer) HasPermission(ctx context.Context, principalID, path string) (bool, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return false, fmt.Errorf("principal id is required")
	}

	roles, err := a.assignments.ListActiveRoles(ctx, principalID)
	if err != nil {
		return false, fmt.Errorf("resolve active roles: %w", err)
	}

	for _, role := range roles {
		if role.Permissions.Resolve(path) {
			return true, nil
		}
	}

	return false, nil
}

// HasRole reports whether the principal holds an active assignment of the
// named role.
func (a *Authorizer) HasRole(ctx context.Context, principalID, roleName string) (bool, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return false, fmt.Errorf("principal id is required")
	}

	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return false, nil
	}

	roles, err := a.assignments.ListActiveRoles(ctx, principalID)
	if err != nil {
		return false, fmt.Errorf("resolve active roles: %w", err)
	}

	for _, role := range roles {
		if role.Name == roleName {
			return true, nil
		}
	}

	return false, nil
}
