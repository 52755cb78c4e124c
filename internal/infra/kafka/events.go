package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	moderationEventPrefix   = "moderation."
	accountRemovalEventType = "identity.account.removal_requested"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
	now      func() time.Time
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger, now: time.Now}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AdminID   string           `json:"admin_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// ModerationEventType returns the event type used for an audited action.
func ModerationEventType(action domain.AuditAction) string {
	return moderationEventPrefix + string(action)
}

// publish wraps payload in the versioned envelope. key selects the partition;
// an empty key falls back to the event id.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, adminID, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = p.now()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}
	if key == "" {
		key = id
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AdminID:   adminID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	return p.producer.Send(ctx, eventType, key, bytes)
}

// PublishModerationAction publishes moderation.<action> events.
func (p *EventPublisher) PublishModerationAction(ctx context.Context, event domain.ModerationEvent) error {
	payload := struct {
		Action     string         `json:"action"`
		AdminID    string         `json:"admin_id"`
		Target     string         `json:"target"`
		Detail     string         `json:"detail,omitempty"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		Action:     string(event.Action),
		AdminID:    event.AdminID,
		Target:     event.Target,
		Detail:     event.Detail,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, ModerationEventType(event.Action), event.AdminID, event.Target, event.OccurredAt, payload)
}

// RemoveAccount asks the identity provider bridge to delete the provider-side account.
func (p *EventPublisher) RemoveAccount(ctx context.Context, subjectID string) error {
	requestedAt := p.now().UTC()
	payload := struct {
		SubjectID   string    `json:"subject_id"`
		RequestedAt time.Time `json:"requested_at"`
	}{
		SubjectID:   subjectID,
		RequestedAt: requestedAt,
	}

	return p.publish(ctx, "", accountRemovalEventType, "", subjectID, requestedAt, payload)
}

var (
	_ port.EventPublisher         = (*EventPublisher)(nil)
	_ port.IdentityAccountRemover = (*EventPublisher)(nil)
)
