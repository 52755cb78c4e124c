package port

import (
	"context"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishModerationAction(ctx context.Context, event domain.ModerationEvent) error
}
