package port

import (
	"context"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
)

// EventPublisher publishes authorization domain events to the message bus.
type EventPublisher interface {
	PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error
	PublishRoleRevoked(ctx context.Context, event domain.RoleRevokedEvent) error
	PublishRoleChanged(ctx context.Context, event domain.RoleChangedEvent) error
}
