package port

import (
	"context"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

// SubjectRepository exposes persistence behavior for subjects.
type SubjectRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	Exists(ctx context.Context, id string) (bool, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	Delete(ctx context.Context, id string) error
}
