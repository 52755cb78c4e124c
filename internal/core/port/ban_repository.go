package port

import (
	"context"
	"time"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

// BanRepository persists user and network address bans.
type BanRepository interface {
	// Upsert stores the ban, replacing any existing ban for the same kind and target.
	Upsert(ctx context.Context, ban domain.BanRecord) (*domain.BanRecord, error)
	GetByTarget(ctx context.Context, kind domain.BanKind, target string) (*domain.BanRecord, error)
	DeleteByTarget(ctx context.Context, kind domain.BanKind, target string) error
	// DeleteExpired removes the ban only when it is still expired at the reference time.
	DeleteExpired(ctx context.Context, id string, kind domain.BanKind, reference time.Time) (bool, error)
}

// AddressUsageRepository persists address-to-subject links.
type AddressUsageRepository interface {
	CountByAddress(ctx context.Context, address string) (int, error)
	// Touch refreshes last_used for an existing (userID, address) pair or inserts a new record.
	Touch(ctx context.Context, usage domain.AddressUsage) (created bool, err error)
}
