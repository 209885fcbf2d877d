package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
)

// StubPublisher logs events instead of publishing them. Used when no brokers
// are configured and in tests.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging stub publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (s *StubPublisher) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	s.logger.Debug("stub publisher: role assigned",
		zap.String("principal_id", event.PrincipalID),
		zap.String("role", event.RoleName),
	)
	return nil
}

func (s *StubPublisher) PublishRoleRevoked(_ context.Context, event domain.RoleRevokedEvent) error {
	s.logger.Debug("stub publisher: role revoked",
		zap.String("principal_id", event.PrincipalID),
		zap.String("role", event.RoleName),
	)
	return nil
}

func (s *StubPublisher) PublishRoleChanged(_ context.Context, event domain.RoleChangedEvent) error {
	s.logger.Debug("stub publisher: role changed",
		zap.String("role", event.RoleName),
		zap.String("action", event.Action),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
