package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
	"github.com/resourceldg/cuiot-sub001/internal/repository"
)

// CanonicalAdminPermissions is the fixed tree the admin system role must
// carry. Reconciliation overwrites any drift back to this value.
func CanonicalAdminPermissions() domain.PermissionTree {
	full := func() domain.PermissionNode {
		return domain.Branch(domain.PermissionTree{
			"read":  domain.Leaf(true),
			"write": domain.Leaf(true),
		})
	}

	return domain.PermissionTree{
		"users":         full(),
		"cared_persons": full(),
		"institutions":  full(),
		"devices":       full(),
		"alerts":        full(),
		"billing":       full(),
		"referrals":     full(),
		"roles": domain.Branch(domain.PermissionTree{
			"read":   domain.Leaf(true),
			"manage": domain.Leaf(true),
			"assign": domain.Leaf(true),
		}),
	}
}

// Reconciler restores canonical state for the platform's system roles and
// the bootstrap admin assignment. Safe to run repeatedly; a run over a
// converged store performs no writes.
type Reconciler struct {
	roles            port.RoleRepository
	assignments      port.AssignmentRepository
	cache            port.RoleCache
	events           port.EventPublisher
	log              *zap.Logger
	bootstrapAdminID string
	now              func() time.Time
}

// NewReconciler constructs a Reconciler. bootstrapAdminID may be empty, in
// which case the bootstrap assignment step is skipped.
func NewReconciler(roles port.RoleRepository, assignments port.AssignmentRepository, cache port.RoleCache, events port.EventPublisher, bootstrapAdminID string, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		roles:            roles,
		assignments:      assignments,
		cache:            cache,
		events:           events,
		log:              log,
		bootstrapAdminID: bootstrapAdminID,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	if now != nil {
		r.now = now
	}
	return r
}

// Run executes one reconciliation pass. No role or assignment outside the
// system set is touched.
func (r *Reconciler) Run(ctx context.Context) error {
	adminDesc := "Platform administrator"
	adminRole, err := r.ensureSystemRole(ctx, domain.RoleAdmin, &adminDesc, CanonicalAdminPermissions())
	if err != nil {
		return fmt.Errorf("reconcile admin role: %w", err)
	}

	noRoleDesc := "Placeholder for principals without an assigned role"
	if _, err := r.ensureSystemRole(ctx, domain.RoleNoRole, &noRoleDesc, domain.PermissionTree{}); err != nil {
		return fmt.Errorf("reconcile placeholder role: %w", err)
	}

	if r.bootstrapAdminID != "" {
		if err := r.ensureBootstrapAssignment(ctx, adminRole.ID); err != nil {
			return fmt.Errorf("reconcile bootstrap admin assignment: %w", err)
		}
	}

	return nil
}

// ensureSystemRole creates the role if absent and otherwise repairs any drift
// in its flags or permission tree. This is the only path that rewrites a
// system role; it calls the repository directly, below the protected-role
// policy the RoleService enforces.
func (r *Reconciler) ensureSystemRole(ctx context.Context, name string, description *string, canonical domain.PermissionTree) (*domain.Role, error) {
	role, err := r.roles.GetByName(ctx, name, false)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup system role %q: %w", name, err)
		}

		now := r.now()
		created := domain.Role{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			Permissions: canonical.Clone(),
			IsSystem:    true,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.roles.Create(ctx, created); err != nil {
			return nil, fmt.Errorf("create system role %q: %w", name, err)
		}

		r.log.Info("created system role", zap.String("role", name))
		r.invalidateCache(ctx, name)
		r.publishReconciled(ctx, created)

		return &created, nil
	}

	drifted := !role.IsSystem || !role.IsActive || !role.Permissions.Equal(canonical)
	if !drifted {
		return role, nil
	}

	role.IsSystem = true
	role.IsActive = true
	role.Permissions = canonical.Clone()
	role.UpdatedAt = r.now()

	if err := r.roles.Update(ctx, *role); err != nil {
		return nil, fmt.Errorf("restore system role %q: %w", name, err)
	}

	r.log.Info("restored system role", zap.String("role", name))
	r.invalidateCache(ctx, name)
	r.publishReconciled(ctx, *role)

	return role, nil
}

// ensureBootstrapAssignment guarantees the bootstrap admin principal holds an
// active, non-expiring admin assignment. Assign is idempotent when the
// assignment already exists; a stray expiry left on it is cleared.
func (r *Reconciler) ensureBootstrapAssignment(ctx context.Context, adminRoleID string) error {
	assignment := domain.RoleAssignment{
		ID:          uuid.NewString(),
		PrincipalID: r.bootstrapAdminID,
		RoleID:      adminRoleID,
		AssignedAt:  r.now(),
		IsActive:    true,
	}

	granted, _, err := r.assignments.Assign(ctx, assignment)
	if err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	if granted.ExpiresAt != nil {
		if err := r.assignments.ClearExpiry(ctx, granted.ID); err != nil {
			return fmt.Errorf("clear admin assignment expiry: %w", err)
		}
		r.log.Info("cleared bootstrap admin assignment expiry",
			zap.String("principal_id", r.bootstrapAdminID))
	}

	return nil
}

func (r *Reconciler) invalidateCache(ctx context.Context, names ...string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, names...); err != nil {
		r.log.Warn("invalidate role cache", zap.Strings("roles", names), zap.Error(err))
	}
}

func (r *Reconciler) publishReconciled(ctx context.Context, role domain.Role) {
	if r.events == nil {
		return
	}
	event := domain.RoleChangedEvent{
		RoleID:     role.ID,
		RoleName:   role.Name,
		Action:     domain.RoleActionReconciled,
		OccurredAt: r.now(),
	}
	if err := r.events.PublishRoleChanged(ctx, event); err != nil {
		r.log.Warn("publish role reconciled event", zap.String("role", role.Name), zap.Error(err))
	}
}
