package port

import (
	"context"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

// IdentityProvider verifies bearer tokens issued by the external identity provider.
type IdentityProvider interface {
	VerifyIDToken(ctx context.Context, token string) (*domain.SubjectIdentity, error)
}

// IdentityAccountRemover removes the provider-side account of a deleted subject.
type IdentityAccountRemover interface {
	RemoveAccount(ctx context.Context, subjectID string) error
}
