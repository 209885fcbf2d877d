package usecase

import (
	"context"
	"time"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/repository"
)

// In-memory fakes shared by the service tests. They mirror the repository
// semantics closely enough that the services cannot tell the difference.

type roleRepoMock struct {
	roles      map[string]domain.Role
	createErr  error
	updateErr  error
	getErr     error
	updateCnt  int
	createCnt  int
	deactivCnt int
}

func newRoleRepoMock(roles ...domain.Role) *roleRepoMock {
	m := &roleRepoMock{roles: make(map[string]domain.Role)}
	for _, role := range roles {
		m.roles[role.ID] = role
	}
	return m
}

func (m *roleRepoMock) Create(_ context.Context, role domain.Role) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.roles {
		if existing.Name == role.Name && existing.IsActive && role.IsActive {
			return repository.ErrDuplicate
		}
	}
	m.roles[role.ID] = role
	m.createCnt++
	return nil
}

func (m *roleRepoMock) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if role, ok := m.roles[id]; ok {
		return &role, nil
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoMock) GetByName(_ context.Context, name string, activeOnly bool) (*domain.Role, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, role := range m.roles {
		if role.Name != name {
			continue
		}
		if activeOnly && !role.IsActive {
			continue
		}
		found := role
		return &found, nil
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoMock) List(_ context.Context, activeOnly bool) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(m.roles))
	for _, role := range m.roles {
		if activeOnly && !role.IsActive {
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (m *roleRepoMock) Update(_ context.Context, role domain.Role) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.roles[role.ID]; !exists {
		return repository.ErrNotFound
	}
	m.roles[role.ID] = role
	m.updateCnt++
	return nil
}

func (m *roleRepoMock) Deactivate(_ context.Context, id string) error {
	role, exists := m.roles[id]
	if !exists {
		return repository.ErrNotFound
	}
	role.IsActive = false
	m.roles[id] = role
	m.deactivCnt++
	return nil
}

type assignmentRepoMock struct {
	roles       *roleRepoMock
	assignments []domain.RoleAssignment
	assignErr   error
	listErr     error
	clearedIDs  []string
}

func (m *assignmentRepoMock) Assign(_ context.Context, assignment domain.RoleAssignment) (*domain.RoleAssignment, []domain.RoleAssignment, error) {
	if m.assignErr != nil {
		return nil, nil, m.assignErr
	}

	for i := range m.assignments {
		if m.assignments[i].PrincipalID == assignment.PrincipalID &&
			m.assignments[i].IsActive &&
			!m.assignments[i].Expired(assignment.AssignedAt) &&
			m.assignments[i].RoleID == assignment.RoleID {
			existing := m.assignments[i]
			return &existing, nil, nil
		}
	}

	superseded := make([]domain.RoleAssignment, 0)
	for i := range m.assignments {
		if m.assignments[i].PrincipalID == assignment.PrincipalID && m.assignments[i].IsActive {
			m.assignments[i].IsActive = false
			expiry := assignment.AssignedAt
			m.assignments[i].ExpiresAt = &expiry
			superseded = append(superseded, m.assignments[i])
		}
	}

	m.assignments = append(m.assignments, assignment)
	return &assignment, superseded, nil
}

func (m *assignmentRepoMock) Deactivate(_ context.Context, principalID, roleID string) (bool, error) {
	for i := range m.assignments {
		if m.assignments[i].PrincipalID == principalID &&
			m.assignments[i].RoleID == roleID &&
			m.assignments[i].IsActive {
			m.assignments[i].IsActive = false
			now := time.Now().UTC()
			m.assignments[i].ExpiresAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (m *assignmentRepoMock) ClearExpiry(_ context.Context, assignmentID string) error {
	for i := range m.assignments {
		if m.assignments[i].ID == assignmentID {
			m.assignments[i].ExpiresAt = nil
			m.clearedIDs = append(m.clearedIDs, assignmentID)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *assignmentRepoMock) ListActive(_ context.Context, principalID string) ([]domain.RoleAssignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	now := time.Now().UTC()
	active := make([]domain.RoleAssignment, 0)
	for _, a := range m.assignments {
		if a.PrincipalID == principalID && a.IsActive && !a.Expired(now) {
			active = append(active, a)
		}
	}
	return active, nil
}

func (m *assignmentRepoMock) ListByPrincipal(_ context.Context, principalID string) ([]domain.RoleAssignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	history := make([]domain.RoleAssignment, 0)
	for _, a := range m.assignments {
		if a.PrincipalID == principalID {
			history = append(history, a)
		}
	}
	return history, nil
}

func (m *assignmentRepoMock) ListActiveRoles(ctx context.Context, principalID string) ([]domain.Role, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	active, err := m.ListActive(ctx, principalID)
	if err != nil {
		return nil, err
	}
	roles := make([]domain.Role, 0, len(active))
	for _, a := range active {
		if m.roles == nil {
			continue
		}
		if role, ok := m.roles.roles[a.RoleID]; ok && role.IsActive {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

type roleCacheMock struct {
	entries     map[string]domain.Role
	getErr      error
	setErr      error
	invalidated []string
	hits        int
	misses      int
}

func newRoleCacheMock() *roleCacheMock {
	return &roleCacheMock{entries: make(map[string]domain.Role)}
}

func (m *roleCacheMock) Get(_ context.Context, name string) (*domain.Role, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if role, ok := m.entries[name]; ok {
		m.hits++
		return &role, nil
	}
	m.misses++
	return nil, nil
}

func (m *roleCacheMock) Set(_ context.Context, role domain.Role) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[role.Name] = role
	return nil
}

func (m *roleCacheMock) Invalidate(_ context.Context, names ...string) error {
	for _, name := range names {
		delete(m.entries, name)
		m.invalidated = append(m.invalidated, name)
	}
	return nil
}

type eventRecorderMock struct {
	assigned []domain.RoleAssignedEvent
	revoked  []domain.RoleRevokedEvent
	changed  []domain.RoleChangedEvent
}

func (m *eventRecorderMock) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	m.assigned = append(m.assigned, event)
	return nil
}

func (m *eventRecorderMock) PublishRoleRevoked(_ context.Context, event domain.RoleRevokedEvent) error {
	m.revoked = append(m.revoked, event)
	return nil
}

func (m *eventRecorderMock) PublishRoleChanged(_ context.Context, event domain.RoleChangedEvent) error {
	m.changed = append(m.changed, event)
	return nil
}
