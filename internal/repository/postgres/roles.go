package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
	"github.com/resourceldg/cuiot-sub001/internal/repository"
)

const uniqueViolation = "23505"

var roleColumns = []string{
	"id",
	"name",
	"description",
	"permissions",
	"is_system",
	"is_active",
	"created_at",
	"updated_at",
}

// RoleRepository implements role persistence over PostgreSQL. The permission
// tree is stored as JSONB in the permissions column.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal role permissions: %w", err)
	}

	stmt, args, err := r.builder.Insert("authz.roles").
		Columns(roleColumns...).
		Values(
			role.ID,
			role.Name,
			role.Description,
			permissions,
			role.IsSystem,
			role.IsActive,
			role.CreatedAt,
			role.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// GetByID retrieves a role by its ID regardless of active state.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("authz.roles").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by id sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role by id: %w", err)
	}

	return role, nil
}

// GetByName retrieves a role by its name. With activeOnly, deactivated roles
// are invisible; name uniqueness is only enforced among active roles.
func (r *RoleRepository) GetByName(ctx context.Context, name string, activeOnly bool) (*domain.Role, error) {
	query := r.builder.Select(roleColumns...).
		From("authz.roles").
		Where(squirrel.Eq{"name": name})
	if activeOnly {
		query = query.Where(squirrel.Eq{"is_active": true})
	}

	stmt, args, err := query.OrderBy("created_at DESC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by name sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role by name: %w", err)
	}

	return role, nil
}

// List retrieves roles sorted by name.
func (r *RoleRepository) List(ctx context.Context, activeOnly bool) ([]domain.Role, error) {
	query := r.builder.Select(roleColumns...).
		From("authz.roles").
		OrderBy("name ASC")
	if activeOnly {
		query = query.Where(squirrel.Eq{"is_active": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// Update rewrites every mutable column of the role. Callers enforce the
// protected-role policy; the reconciler relies on this method to restore
// system roles.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal role permissions: %w", err)
	}

	stmt, args, err := r.builder.Update("authz.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("permissions", permissions).
		Set("is_system", role.IsSystem).
		Set("is_active", role.IsActive).
		Set("updated_at", role.UpdatedAt).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("update role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate flips the role inactive. Rows are never deleted; assignments
// keep referencing them for history.
func (r *RoleRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("authz.roles").
		Set("is_active", false).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
		permissions []byte
	)

	if err := row.Scan(
		&role.ID,
		&role.Name,
		&description,
		&permissions,
		&role.IsSystem,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		role.Description = &description.String
	}

	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshal role permissions: %w", err)
		}
	}
	if role.Permissions == nil {
		role.Permissions = domain.PermissionTree{}
	}

	return &role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ port.RoleRepository = (*RoleRepository)(nil)
