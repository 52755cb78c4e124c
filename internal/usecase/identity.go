package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/infra/logger"
)

// IdentityVerifier turns an opaque ID token into a verified subject.
// The subject is only ever taken from the token itself.
type IdentityVerifier struct {
	provider port.IdentityProvider
	logger   *zap.Logger
}

// NewIdentityVerifier constructs a verifier backed by the supplied identity provider.
func NewIdentityVerifier(provider port.IdentityProvider) *IdentityVerifier {
	return &IdentityVerifier{provider: provider, logger: zap.NewNop()}
}

// WithLogger attaches a structured logger for verification diagnostics.
func (v *IdentityVerifier) WithLogger(logger *zap.Logger) *IdentityVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// Verify returns the subject of a valid token, or ErrTokenInvalid.
func (v *IdentityVerifier) Verify(ctx context.Context, token string) (domain.SubjectIdentity, error) {
	if v.provider == nil || token == "" {
		return domain.SubjectIdentity{}, ErrTokenInvalid
	}

	identity, err := v.provider.VerifyIDToken(ctx, token)
	if err != nil {
		logger.WithContext(ctx, v.logger).Debug("id token rejected",
			zap.String("token", logger.MaskToken(token)),
			zap.Error(err),
		)
		return domain.SubjectIdentity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if identity == nil || identity.SubjectID == "" {
		return domain.SubjectIdentity{}, ErrTokenInvalid
	}

	return *identity, nil
}
