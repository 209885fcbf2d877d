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

// Permission paths checked by the HTTP layer for the administrative surface.
const (
	PermissionRolesRead   = "roles.read"
	PermissionRolesManage = "roles.manage"
	PermissionRolesAssign = "roles.assign"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist or is inactive.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists indicates a role with the provided name already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrProtectedRole indicates a mutation targeted a system role.
	ErrProtectedRole = errors.New("system role cannot be modified")
	// ErrInvalidPermissionTree indicates a malformed permission tree payload.
	ErrInvalidPermissionTree = errors.New("invalid permission tree")
)

// CreateRoleInput captures the payload for creating a role.
type CreateRoleInput struct {
	Name        string
	Description *string
	Permissions domain.PermissionTree
}

// UpdateRoleInput captures a partial role update; nil fields are left untouched.
type UpdateRoleInput struct {
	Name        *string
	Description *string
	Permissions domain.PermissionTree
}

// RoleService manages the role store. System roles (admin, sin_rol) reject
// every mutation here; the reconciler rewrites them through the repository
// directly.
type RoleService struct {
	roles  port.RoleRepository
	cache  port.RoleCache
	events port.EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository, cache port.RoleCache, events port.EventPublisher, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{
		roles:  roles,
		cache:  cache,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (s *RoleService) WithClock(now func() time.Time) *RoleService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateRole provisions a new role.
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*domain.Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	permissions := input.Permissions
	if permissions == nil {
		permissions = domain.PermissionTree{}
	}
	if err := permissions.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPermissionTree, err)
	}

	if existing, err := s.roles.GetByName(ctx, name, true); err == nil && existing != nil {
		return nil, ErrRoleExists
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup role by name: %w", err)
	}

	now := s.now()
	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Permissions: permissions,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		if trimmed != "" {
			role.Description = &trimmed
		}
	}

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.publishChange(ctx, role, domain.RoleActionCreated)

	return &role, nil
}

// GetRole retrieves a role by ID.
func (s *RoleService) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("role id is required")
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}

	return role, nil
}

// GetRoleByName retrieves an active role, reading through the cache.
func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	return resolveActiveRole(ctx, s.roles, s.cache, s.log, name)
}

// ListRoles returns roles, optionally only active ones.
func (s *RoleService) ListRoles(ctx context.Context, activeOnly bool) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// UpdateRole applies a partial update to a non-system role.
func (s *RoleService) UpdateRole(ctx context.Context, roleID string, input UpdateRoleInput) (*domain.Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if role.IsSystem {
		return nil, ErrProtectedRole
	}

	previousName := role.Name

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("role name is required")
		}
		role.Name = trimmed
	}

	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		if trimmed == "" {
			role.Description = nil
		} else {
			role.Description = &trimmed
		}
	}

	if input.Permissions != nil {
		if err := input.Permissions.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPermissionTree, err)
		}
		role.Permissions = input.Permissions
	}

	role.UpdatedAt = s.now()

	if err := s.roles.Update(ctx, *role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.invalidateCache(ctx, previousName, role.Name)
	s.publishChange(ctx, *role, domain.RoleActionUpdated)

	return role, nil
}

// DeactivateRole soft-deletes a non-system role. Historical assignments keep
// referencing the row.
func (s *RoleService) DeactivateRole(ctx context.Context, roleID string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	if role.IsSystem {
		return ErrProtectedRole
	}

	if err := s.roles.Deactivate(ctx, role.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("deactivate role: %w", err)
	}

	s.invalidateCache(ctx, role.Name)
	s.publishChange(ctx, *role, domain.RoleActionDeactivated)

	return nil
}

func (s *RoleService) invalidateCache(ctx context.Context, names ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, names...); err != nil {
		s.log.Warn("invalidate role cache", zap.Strings("roles", names), zap.Error(err))
	}
}

func (s *RoleService) publishChange(ctx context.Context, role domain.Role, action string) {
	if s.events == nil {
		return
	}
	event := domain.RoleChangedEvent{
		RoleID:     role.ID,
		RoleName:   role.Name,
		Action:     action,
		OccurredAt: s.now(),
	}
	if err := s.events.PublishRoleChanged(ctx, event); err != nil {
		s.log.Warn("publish role changed event", zap.String("role", role.Name), zap.Error(err))
	}
}

// resolveActiveRole reads an active role through the cache. Cache failures
// degrade to the repository; a miss populates the cache best-effort.
func resolveActiveRole(ctx context.Context, roles port.RoleRepository, cache port.RoleCache, log *zap.Logger, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	if cache != nil {
		cached, err := cache.Get(ctx, name)
		if err != nil {
			log.Warn("role cache read", zap.String("role", name), zap.Error(err))
		} else if cached != nil && cached.IsActive {
			return cached, nil
		}
	}

	role, err := roles.GetByName(ctx, name, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role by name: %w", err)
	}

	if cache != nil {
		if err := cache.Set(ctx, *role); err != nil {
			log.Warn("role cache write", zap.String("role", name), zap.Error(err))
		}
	}

	return role, nil
}
