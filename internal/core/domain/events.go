package domain

import "time"

// ModerationEvent represents the payload for chat.moderation.* messages.
type ModerationEvent struct {
	EventID    string
	Action     AuditAction
	AdminID    string
	Target     string
	Detail     string
	OccurredAt time.Time
	Metadata   map[string]any
}
