package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
	"github.com/resourceldg/cuiot-sub001/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published on the bus. Downstream consumers mirror assignment
// history for audit and drop role-cache entries on other instances.
const (
	EventRoleAssigned = "role.assigned"
	EventRoleRevoked  = "role.revoked"
	EventRoleChanged  = "role.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Version     string            `json:"version"`
	Payload     any               `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(_ context.Context, eventType, principalID, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	envelope := eventEnvelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	p.producer.Input() <- msg

	return nil
}

// PublishRoleAssigned emits a role.assigned event keyed by principal so
// supersession events for one principal stay ordered.
func (p *EventPublisher) PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error {
	return p.publish(ctx, EventRoleAssigned, event.PrincipalID, event.PrincipalID, event.AssignedAt, event)
}

// PublishRoleRevoked emits a role.revoked event.
func (p *EventPublisher) PublishRoleRevoked(ctx context.Context, event domain.RoleRevokedEvent) error {
	return p.publish(ctx, EventRoleRevoked, event.PrincipalID, event.PrincipalID, event.RevokedAt, event)
}

// PublishRoleChanged emits a role.changed event keyed by role.
func (p *EventPublisher) PublishRoleChanged(ctx context.Context, event domain.RoleChangedEvent) error {
	return p.publish(ctx, EventRoleChanged, "", event.RoleID, event.OccurredAt, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
