package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
	"github.com/resourceldg/cuiot-sub001/internal/repository"
)

// AssignmentService owns the principal-role state machine. The schema is
// many-to-many, but granting a role supersedes every other active assignment
// of the principal, so at most one assignment per principal is active at any
// instant.
type AssignmentService struct {
	assignments port.AssignmentRepository
	roles       port.RoleRepository
	cache       port.RoleCache
	events      port.EventPublisher
	log         *zap.Logger
	now         func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(assignments port.AssignmentRepository, roles port.RoleRepository, cache port.RoleCache, events port.EventPublisher, log *zap.Logger) *AssignmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssignmentService{
		assignments: assignments,
		roles:       roles,
		cache:       cache,
		events:      events,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (s *AssignmentService) WithClock(now func() time.Time) *AssignmentService {
	if now != nil {
		s.now = now
	}
	return s
}

// AssignRole grants the named role to the principal, deactivating any other
// active assignment in the same transaction. Granting a role the principal
// already holds is an idempotent no-op returning the existing row. The
// superseded assignments are returned for audit responses.
func (s *AssignmentService) AssignRole(ctx context.Context, principalID, roleName string, assignedBy *string, expiresAt *time.Time) (*domain.RoleAssignment, []domain.RoleAssignment, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, nil, fmt.Errorf("principal id is required")
	}

	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, nil, fmt.Errorf("expiry must be in the future")
	}

	role, err := resolveActiveRole(ctx, s.roles, s.cache, s.log, roleName)
	if err != nil {
		return nil, nil, err
	}

	assignment := domain.RoleAssignment{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		RoleID:      role.ID,
		AssignedBy:  normalizeActor(assignedBy),
		AssignedAt:  s.now(),
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}

	granted, superseded, err := s.assignments.Assign(ctx, assignment)
	if err != nil {
		return nil, nil, fmt.Errorf("assign role %q: %w", role.Name, err)
	}

	if granted.ID == assignment.ID {
		s.publishAssigned(ctx, *granted, role.Name, superseded)
	}

	return granted, superseded, nil
}

// RevokeRole deactivates the principal's assignment of the named role. It
// returns false when no matching assignment exists; the caller decides
// whether that is an error. The row is kept as audit history.
func (s *AssignmentService) RevokeRole(ctx context.Context, principalID, roleName string) (bool, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return false, fmt.Errorf("principal id is required")
	}

	// Deactivated roles are looked up too: revoking an assignment of a role
	// that was since retired must still work.
	role, err := s.roles.GetByName(ctx, strings.TrimSpace(roleName), false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrRoleNotFound
		}
		return false, fmt.Errorf("lookup role by name: %w", err)
	}

	revoked, err := s.assignments.Deactivate(ctx, principalID, role.ID)
	if err != nil {
		return false, fmt.Errorf("revoke role %q: %w", role.Name, err)
	}

	if revoked {
		s.publishRevoked(ctx, principalID, role.ID, role.Name)
	}

	return revoked, nil
}

// ListActiveRoles returns the roles behind the principal's active,
// non-expired assignments. The repository resolves this with a single joined
// query; per-assignment lookups would reintroduce the N+1 pattern the
// permission check must avoid.
func (s *AssignmentService) ListActiveRoles(ctx context.Context, principalID string) ([]domain.Role, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	roles, err := s.assignments.ListActiveRoles(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list active roles: %w", err)
	}

	return roles, nil
}

// ListAssignments returns the principal's assignment history, or only the
// active rows when activeOnly is set.
func (s *AssignmentService) ListAssignments(ctx context.Context, principalID string, activeOnly bool) ([]domain.RoleAssignment, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	var (
		assignments []domain.RoleAssignment
		err         error
	)
	if activeOnly {
		assignments, err = s.assignments.ListActive(ctx, principalID)
	} else {
		assignments, err = s.assignments.ListByPrincipal(ctx, principalID)
	}
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	return assignments, nil
}

func (s *AssignmentService) publishAssigned(ctx context.Context, assignment domain.RoleAssignment, roleName string, superseded []domain.RoleAssignment) {
	if s.events == nil {
		return
	}

	supersededIDs := make([]string, 0, len(superseded))
	for _, prev := range superseded {
		supersededIDs = append(supersededIDs, prev.RoleID)
	}

	event := domain.RoleAssignedEvent{
		AssignmentID:      assignment.ID,
		PrincipalID:       assignment.PrincipalID,
		RoleID:            assignment.RoleID,
		RoleName:          roleName,
		AssignedBy:        assignment.AssignedBy,
		SupersededRoleIDs: supersededIDs,
		AssignedAt:        assignment.AssignedAt,
	}
	if err := s.events.PublishRoleAssigned(ctx, event); err != nil {
		s.log.Warn("publish role assigned event",
			zap.String("principal_id", assignment.PrincipalID),
			zap.String("role", roleName),
			zap.Error(err))
	}
}

func (s *AssignmentService) publishRevoked(ctx context.Context, principalID, roleID, roleName string) {
	if s.events == nil {
		return
	}

	event := domain.RoleRevokedEvent{
		PrincipalID: principalID,
		RoleID:      roleID,
		RoleName:    roleName,
		RevokedAt:   s.now(),
	}
	if err := s.events.PublishRoleRevoked(ctx, event); err != nil {
		s.log.Warn("publish role revoked event",
			zap.String("principal_id", principalID),
			zap.String("role", roleName),
			zap.Error(err))
	}
}

func normalizeActor(actor *string) *string {
	if actor == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*actor)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
