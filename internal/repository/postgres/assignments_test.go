package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/repository"
)

func TestAssignmentRepository_AssignFirstGrant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	assignedAt := time.Now().UTC()
	assignment := domain.RoleAssignment{
		ID:          "assign-1",
		PrincipalID: "principal-1",
		RoleID:      "role-1",
		AssignedAt:  assignedAt,
		IsActive:    true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .*FROM authz\.role_assignments.*FOR UPDATE`).
		WithArgs(true, "principal-1").
		WillReturnRows(pgxmock.NewRows(assignmentColumns))
	mock.ExpectExec(`INSERT INTO authz\.role_assignments`).
		WithArgs(
			assignment.ID,
			assignment.PrincipalID,
			assignment.RoleID,
			(*string)(nil),
			assignment.AssignedAt,
			(*time.Time)(nil),
			assignment.IsActive,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	granted, superseded, err := repo.Assign(context.Background(), assignment)
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if granted.ID != assignment.ID {
		t.Fatalf("expected new row granted, got %s", granted.ID)
	}
	if len(superseded) != 0 {
		t.Fatalf("expected no superseded rows, got %d", len(superseded))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_AssignSupersedes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	assignedAt := time.Now().UTC()
	previousAt := assignedAt.Add(-24 * time.Hour)
	assignment := domain.RoleAssignment{
		ID:          "assign-2",
		PrincipalID: "principal-1",
		RoleID:      "role-caregiver",
		AssignedAt:  assignedAt,
		IsActive:    true,
	}

	activeRows := pgxmock.NewRows(assignmentColumns).AddRow(
		"assign-1", "principal-1", "role-family", nil, previousAt, nil, true,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .*FROM authz\.role_assignments.*FOR UPDATE`).
		WithArgs(true, "principal-1").
		WillReturnRows(activeRows)
	mock.ExpectExec(`UPDATE authz\.role_assignments SET`).
		WithArgs(false, assignedAt, true, "principal-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO authz\.role_assignments`).
		WithArgs(
			assignment.ID,
			assignment.PrincipalID,
			assignment.RoleID,
			(*string)(nil),
			assignment.AssignedAt,
			(*time.Time)(nil),
			assignment.IsActive,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	granted, superseded, err := repo.Assign(context.Background(), assignment)
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if granted.ID != "assign-2" {
		t.Fatalf("expected new row granted, got %s", granted.ID)
	}
	if len(superseded) != 1 {
		t.Fatalf("expected one superseded row, got %d", len(superseded))
	}
	if superseded[0].IsActive {
		t.Fatal("superseded row must be reported inactive")
	}
	if superseded[0].ExpiresAt == nil || !superseded[0].ExpiresAt.Equal(assignedAt) {
		t.Fatal("superseded row must carry the supersession time as expiry")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_AssignIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	previousAt := time.Now().UTC().Add(-time.Hour)
	assignment := domain.RoleAssignment{
		ID:          "assign-2",
		PrincipalID: "principal-1",
		RoleID:      "role-family",
		AssignedAt:  time.Now().UTC(),
		IsActive:    true,
	}

	activeRows := pgxmock.NewRows(assignmentColumns).AddRow(
		"assign-1", "principal-1", "role-family", nil, previousAt, nil, true,
	)

	// No update, no insert: the held role short-circuits inside the tx.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .*FROM authz\.role_assignments.*FOR UPDATE`).
		WithArgs(true, "principal-1").
		WillReturnRows(activeRows)
	mock.ExpectCommit()

	granted, superseded, err := repo.Assign(context.Background(), assignment)
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if granted.ID != "assign-1" {
		t.Fatalf("expected existing row returned, got %s", granted.ID)
	}
	if len(superseded) != 0 {
		t.Fatal("idempotent grant must supersede nothing")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_AssignReplacesExpiredRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	assignedAt := time.Now().UTC()
	staleExpiry := assignedAt.Add(-time.Hour)
	assignment := domain.RoleAssignment{
		ID:          "assign-2",
		PrincipalID: "principal-1",
		RoleID:      "role-family",
		AssignedAt:  assignedAt,
		IsActive:    true,
	}

	// Same role, but the held row expired an hour ago while its flag stayed
	// set. The grant must not short-circuit on it.
	staleRows := pgxmock.NewRows(assignmentColumns).AddRow(
		"assign-stale", "principal-1", "role-family", nil, assignedAt.Add(-24*time.Hour), &staleExpiry, true,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .*FROM authz\.role_assignments.*FOR UPDATE`).
		WithArgs(true, "principal-1").
		WillReturnRows(staleRows)
	mock.ExpectExec(`UPDATE authz\.role_assignments SET`).
		WithArgs(false, assignedAt, true, "principal-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO authz\.role_assignments`).
		WithArgs(
			assignment.ID,
			assignment.PrincipalID,
			assignment.RoleID,
			(*string)(nil),
			assignment.AssignedAt,
			(*time.Time)(nil),
			assignment.IsActive,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	granted, superseded, err := repo.Assign(context.Background(), assignment)
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if granted.ID != "assign-2" {
		t.Fatalf("expected fresh row granted, got %s", granted.ID)
	}
	if granted.ExpiresAt != nil {
		t.Fatal("fresh grant must not inherit the stale expiry")
	}
	if len(superseded) != 1 || superseded[0].ID != "assign-stale" {
		t.Fatalf("expected the expired row superseded, got %+v", superseded)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_AssignRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	assignment := domain.RoleAssignment{
		ID:          "assign-1",
		PrincipalID: "principal-1",
		RoleID:      "role-1",
		AssignedAt:  time.Now().UTC(),
		IsActive:    true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .*FROM authz\.role_assignments.*FOR UPDATE`).
		WithArgs(true, "principal-1").
		WillReturnRows(pgxmock.NewRows(assignmentColumns))
	mock.ExpectExec(`INSERT INTO authz\.role_assignments`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, _, err := repo.Assign(context.Background(), assignment); err == nil {
		t.Fatal("expected insert failure to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_Deactivate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	mock.ExpectExec(`UPDATE authz\.role_assignments SET is_active = \$1, expires_at = NOW\(\)`).
		WithArgs(false, true, "principal-1", "role-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	revoked, err := repo.Deactivate(context.Background(), "principal-1", "role-1")
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if !revoked {
		t.Fatal("expected revocation to report a change")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_DeactivateNoActiveRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	mock.ExpectExec(`UPDATE authz\.role_assignments SET is_active = \$1, expires_at = NOW\(\)`).
		WithArgs(false, true, "principal-1", "role-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	revoked, err := repo.Deactivate(context.Background(), "principal-1", "role-1")
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if revoked {
		t.Fatal("expected no-op when nothing is active")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_ClearExpiry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	mock.ExpectExec(`UPDATE authz\.role_assignments SET expires_at = \$1`).
		WithArgs(nil, "assign-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.ClearExpiry(context.Background(), "assign-1"); err != nil {
		t.Fatalf("ClearExpiry returned error: %v", err)
	}

	mock.ExpectExec(`UPDATE authz\.role_assignments SET expires_at = \$1`).
		WithArgs(nil, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.ClearExpiry(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_ListActiveRoles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(roleColumns).AddRow(
		"role-1", "caregiver", nil, []byte(`{"cared_persons":{"read":true}}`), false, true, now, now,
	)

	mock.ExpectQuery(`SELECT .*FROM authz\.roles r JOIN authz\.role_assignments a ON a\.role_id = r\.id`).
		WithArgs(true, "principal-1", true).
		WillReturnRows(rows)

	roles, err := repo.ListActiveRoles(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("ListActiveRoles returned error: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "caregiver" {
		t.Fatalf("unexpected roles %+v", roles)
	}
	if !roles[0].Permissions.Resolve("cared_persons.read") {
		t.Fatal("expected permission tree decoded from join")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignmentRepository_ListByPrincipal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAssignmentRepository(mock)

	now := time.Now().UTC()
	expiry := now.Add(-time.Hour)
	assignedBy := "admin-1"

	rows := pgxmock.NewRows(assignmentColumns).
		AddRow("assign-2", "principal-1", "role-caregiver", &assignedBy, now, nil, true).
		AddRow("assign-1", "principal-1", "role-family", nil, now.Add(-24*time.Hour), &expiry, false)

	mock.ExpectQuery(`SELECT .*FROM authz\.role_assignments`).
		WithArgs("principal-1").
		WillReturnRows(rows)

	history, err := repo.ListByPrincipal(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("ListByPrincipal returned error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(history))
	}
	if history[0].AssignedBy == nil || *history[0].AssignedBy != assignedBy {
		t.Fatal("expected assigned_by populated on first row")
	}
	if history[1].IsActive || history[1].ExpiresAt == nil {
		t.Fatal("expected superseded second row")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
