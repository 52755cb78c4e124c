package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/repository"
)

// PrivilegeGate is the only place admin authority is established.
// Every call reads the subject fresh from the store and fails closed.
type PrivilegeGate struct {
	subjects port.SubjectRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewPrivilegeGate constructs a gate over the subject store.
func NewPrivilegeGate(subjects port.SubjectRepository) *PrivilegeGate {
	return &PrivilegeGate{subjects: subjects, logger: zap.NewNop(), now: time.Now}
}

// WithLogger attaches a structured logger.
func (g *PrivilegeGate) WithLogger(logger *zap.Logger) *PrivilegeGate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithNow overrides the clock, primarily for deterministic testing.
func (g *PrivilegeGate) WithNow(now func() time.Time) *PrivilegeGate {
	if now != nil {
		g.now = now
	}
	return g
}

// RequireAdmin returns an AdminIdentity when the subject's stored flag is true.
// A missing record, a read error or a false flag all yield ErrNotAdmin.
func (g *PrivilegeGate) RequireAdmin(ctx context.Context, identity domain.SubjectIdentity) (domain.AdminIdentity, error) {
	if g.subjects == nil || identity.SubjectID == "" {
		return domain.AdminIdentity{}, ErrNotAdmin
	}

	subject, err := g.subjects.GetByID(ctx, identity.SubjectID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			g.logger.Warn("privilege lookup failed, denying",
				zap.String("subject_id", identity.SubjectID),
				zap.Error(err),
			)
		}
		return domain.AdminIdentity{}, ErrNotAdmin
	}
	if subject == nil || !subject.IsAdmin {
		return domain.AdminIdentity{}, ErrNotAdmin
	}

	return domain.AdminIdentity{SubjectID: subject.ID, VerifiedAt: g.now().UTC()}, nil
}
