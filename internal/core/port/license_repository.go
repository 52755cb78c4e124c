package port

import (
	"context"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

// LicenseRepository persists issued licenses.
type LicenseRepository interface {
	Create(ctx context.Context, license domain.License) error
	GetByID(ctx context.Context, id string) (*domain.License, error)
}

// AuditRepository appends administrative audit entries.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}
