package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now()
	}

	p.logger.Info("Stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

// PublishModerationAction logs moderation.<action> events.
func (p *StubPublisher) PublishModerationAction(_ context.Context, event domain.ModerationEvent) error {
	p.logEvent(ModerationEventType(event.Action), event.OccurredAt,
		zap.String("admin_id", event.AdminID),
		zap.String("target", event.Target),
		zap.String("detail", event.Detail),
		zap.Any("metadata", event.Metadata),
	)
	return nil
}

// RemoveAccount logs the account removal request. No provider account is touched.
func (p *StubPublisher) RemoveAccount(_ context.Context, subjectID string) error {
	p.logEvent(accountRemovalEventType, time.Time{}, zap.String("subject_id", subjectID))
	return nil
}

var (
	_ port.EventPublisher         = (*StubPublisher)(nil)
	_ port.IdentityAccountRemover = (*StubPublisher)(nil)
)
