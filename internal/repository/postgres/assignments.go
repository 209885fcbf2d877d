package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
	"github.com/resourceldg/cuiot-sub001/internal/repository"
)

var assignmentColumns = []string{
	"id",
	"principal_id",
	"role_id",
	"assigned_by",
	"assigned_at",
	"expires_at",
	"is_active",
}

// AssignmentRepository implements principal-role link persistence. The
// supersession transition runs inside one transaction guarded by a row-level
// lock on the principal's active assignments, so concurrent grants for the
// same principal serialize and exactly one active row survives.
type AssignmentRepository struct {
	db      pgBeginner
	builder squirrel.StatementBuilderType
}

// NewAssignmentRepository constructs a repository backed by any executor that
// can open transactions (pool or mock).
func NewAssignmentRepository(db pgBeginner) *AssignmentRepository {
	return &AssignmentRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Assign atomically deactivates the principal's active assignments and
// inserts the provided one. If the target role is already held by an
// unexpired active row, that row is returned unchanged. Partial supersession
// is never observable: any failure rolls the whole transition back.
func (r *AssignmentRepository) Assign(ctx context.Context, assignment domain.RoleAssignment) (*domain.RoleAssignment, []domain.RoleAssignment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin assign tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	active, err := r.lockActive(ctx, tx, assignment.PrincipalID)
	if err != nil {
		return nil, nil, err
	}

	for i := range active {
		if active[i].RoleID != assignment.RoleID {
			continue
		}
		// A row whose expiry has passed while the flag stayed set is not a
		// live grant. It falls through and gets superseded like any other.
		if active[i].Expired(assignment.AssignedAt) {
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, fmt.Errorf("commit assign tx: %w", err)
		}
		existing := active[i]
		return &existing, nil, nil
	}

	supersededAt := assignment.AssignedAt

	if len(active) > 0 {
		stmt, args, err := r.builder.Update("authz.role_assignments").
			Set("is_active", false).
			Set("expires_at", supersededAt).
			Where(squirrel.Eq{"principal_id": assignment.PrincipalID, "is_active": true}).
			ToSql()
		if err != nil {
			return nil, nil, fmt.Errorf("build supersede assignments sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return nil, nil, fmt.Errorf("supersede assignments: %w", err)
		}
	}

	stmt, args, err := r.builder.Insert("authz.role_assignments").
		Columns(assignmentColumns...).
		Values(
			assignment.ID,
			assignment.PrincipalID,
			assignment.RoleID,
			assignment.AssignedBy,
			assignment.AssignedAt,
			assignment.ExpiresAt,
			assignment.IsActive,
		).
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build insert assignment sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return nil, nil, fmt.Errorf("insert assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit assign tx: %w", err)
	}

	superseded := make([]domain.RoleAssignment, 0, len(active))
	for _, prev := range active {
		prev.IsActive = false
		expiry := supersededAt
		prev.ExpiresAt = &expiry
		superseded = append(superseded, prev)
	}

	return &assignment, superseded, nil
}

// lockActive selects the principal's active rows FOR UPDATE, serializing
// concurrent supersessions on the same principal.
func (r *AssignmentRepository) lockActive(ctx context.Context, tx pgx.Tx, principalID string) ([]domain.RoleAssignment, error) {
	stmt, args, err := r.builder.Select(assignmentColumns...).
		From("authz.role_assignments").
		Where(squirrel.Eq{"principal_id": principalID, "is_active": true}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock assignments sql: %w", err)
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("lock assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// Deactivate soft-revokes the active assignment for the principal/role pair.
// The row stays behind as audit history.
func (r *AssignmentRepository) Deactivate(ctx context.Context, principalID, roleID string) (bool, error) {
	stmt, args, err := r.builder.Update("authz.role_assignments").
		Set("is_active", false).
		Set("expires_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{
			"principal_id": principalID,
			"role_id":      roleID,
			"is_active":    true,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build deactivate assignment sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("deactivate assignment: %w", err)
	}

	return res.RowsAffected() > 0, nil
}

// ClearExpiry removes the expiry of an assignment.
func (r *AssignmentRepository) ClearExpiry(ctx context.Context, assignmentID string) error {
	stmt, args, err := r.builder.Update("authz.role_assignments").
		Set("expires_at", nil).
		Where(squirrel.Eq{"id": assignmentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear expiry sql: %w", err)
	}

	res, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear assignment expiry: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActive returns the principal's active assignments, treating rows whose
// expiry has passed as inactive even when the flag has not been swept.
func (r *AssignmentRepository) ListActive(ctx context.Context, principalID string) ([]domain.RoleAssignment, error) {
	stmt, args, err := r.builder.Select(assignmentColumns...).
		From("authz.role_assignments").
		Where(squirrel.Eq{"principal_id": principalID, "is_active": true}).
		Where(squirrel.Expr("(expires_at IS NULL OR expires_at > NOW())")).
		OrderBy("assigned_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active assignments sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query active assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListByPrincipal returns the full assignment history for the principal.
func (r *AssignmentRepository) ListByPrincipal(ctx context.Context, principalID string) ([]domain.RoleAssignment, error) {
	stmt, args, err := r.builder.Select(assignmentColumns...).
		From("authz.role_assignments").
		Where(squirrel.Eq{"principal_id": principalID}).
		OrderBy("assigned_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list assignments sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListActiveRoles resolves the principal's active roles with one joined query
// instead of per-assignment lookups.
func (r *AssignmentRepository) ListActiveRoles(ctx context.Context, principalID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(
		"r.id",
		"r.name",
		"r.description",
		"r.permissions",
		"r.is_system",
		"r.is_active",
		"r.created_at",
		"r.updated_at",
	).
		From("authz.roles r").
		Join("authz.role_assignments a ON a.role_id = r.id").
		Where(squirrel.Eq{"a.principal_id": principalID, "a.is_active": true}).
		Where(squirrel.Expr("(a.expires_at IS NULL OR a.expires_at > NOW())")).
		Where(squirrel.Eq{"r.is_active": true}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active roles sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query active roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active roles: %w", err)
	}

	return roles, nil
}

func collectAssignments(rows pgx.Rows) ([]domain.RoleAssignment, error) {
	assignments := make([]domain.RoleAssignment, 0)
	for rows.Next() {
		var a domain.RoleAssignment
		if err := rows.Scan(
			&a.ID,
			&a.PrincipalID,
			&a.RoleID,
			&a.AssignedBy,
			&a.AssignedAt,
			&a.ExpiresAt,
			&a.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return assignments, nil
}

var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
