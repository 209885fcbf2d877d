package port

import (
	"context"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
)

// RoleRepository handles role persistence. Update writes every mutable column;
// the protected-role policy lives in the service layer, so the reconciler can
// use Update as its privileged path.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string, activeOnly bool) (*domain.Role, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Role, error)
	Update(ctx context.Context, role domain.Role) error
	Deactivate(ctx context.Context, id string) error
}
