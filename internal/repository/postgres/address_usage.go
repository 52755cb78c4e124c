package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
)

// xmax is zero only for rows created by this statement, which separates inserts from conflict updates.
const addressUsageUpsertSuffix = `ON CONFLICT (user_id, address) DO UPDATE SET
	last_used = EXCLUDED.last_used,
	email = COALESCE(EXCLUDED.email, chat.ip_usage.email)
RETURNING (xmax = 0) AS inserted`

// AddressUsageRepository implements port.AddressUsageRepository using PostgreSQL.
type AddressUsageRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAddressUsageRepository wires a PostgreSQL-backed address usage repository.
func NewAddressUsageRepository(exec pgExecutor) *AddressUsageRepository {
	return &AddressUsageRepository{exec: exec, builder: newBuilder()}
}

// CountByAddress returns the number of subjects linked to the address.
func (r *AddressUsageRepository) CountByAddress(ctx context.Context, address string) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("chat.ip_usage").
		Where(squirrel.Eq{"address": address}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count address usage sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count address usage: %w", err)
	}
	return count, nil
}

// Touch inserts the (user, address) link or refreshes last_used on the existing one.
// recorded_at is never changed by a refresh.
func (r *AddressUsageRepository) Touch(ctx context.Context, usage domain.AddressUsage) (bool, error) {
	id := usage.ID
	if id == "" {
		id = uuid.NewString()
	}

	stmt, args, err := r.builder.
		Insert("chat.ip_usage").
		Columns("id", "user_id", "address", "email", "recorded_at", "last_used").
		Values(id, usage.UserID, usage.Address, usage.Email, usage.RecordedAt, usage.LastUsed).
		Suffix(addressUsageUpsertSuffix).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert address usage sql: %w", err)
	}

	var inserted bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&inserted); err != nil {
		return false, fmt.Errorf("upsert address usage: %w", err)
	}
	return inserted, nil
}

var _ port.AddressUsageRepository = (*AddressUsageRepository)(nil)
