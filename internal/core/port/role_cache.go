package port

import (
	"context"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
)

// RoleCache caches role rows by name. Assignments are never cached; the
// single-active-role invariant requires read-your-writes on those.
type RoleCache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, name string) (*domain.Role, error)
	Set(ctx context.Context, role domain.Role) error
	Invalidate(ctx context.Context, names ...string) error
}
