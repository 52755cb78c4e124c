package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/repository"
)

const banUpsertSuffix = `ON CONFLICT (kind, target) DO UPDATE SET
	id = EXCLUDED.id,
	reason = EXCLUDED.reason,
	banned_by = EXCLUDED.banned_by,
	created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at
RETURNING id, created_at`

// BanRepository implements port.BanRepository using PostgreSQL.
// User and address bans share one table keyed by (kind, target).
type BanRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewBanRepository wires a PostgreSQL-backed ban repository.
func NewBanRepository(exec pgExecutor) *BanRepository {
	return &BanRepository{exec: exec, builder: newBuilder()}
}

// Upsert inserts the ban or replaces the existing ban for the same target in a single statement.
func (r *BanRepository) Upsert(ctx context.Context, ban domain.BanRecord) (*domain.BanRecord, error) {
	stmt, args, err := r.builder.
		Insert("chat.bans").
		Columns("id", "kind", "target", "reason", "banned_by", "created_at", "expires_at").
		Values(ban.ID, string(ban.Kind), ban.Target, ban.Reason, ban.BannedBy, ban.CreatedAt, ban.ExpiresAt).
		Suffix(banUpsertSuffix).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert ban sql: %w", err)
	}

	stored := ban
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&stored.ID, &stored.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert ban: %w", err)
	}
	return &stored, nil
}

// GetByTarget returns the ban for the target regardless of expiry.
func (r *BanRepository) GetByTarget(ctx context.Context, kind domain.BanKind, target string) (*domain.BanRecord, error) {
	stmt, args, err := r.builder.
		Select("id", "kind", "target", "reason", "banned_by", "created_at", "expires_at").
		From("chat.bans").
		Where(squirrel.Eq{"kind": string(kind), "target": target}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select ban sql: %w", err)
	}

	var (
		ban       domain.BanRecord
		rawKind   string
		expiresAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&ban.ID,
		&rawKind,
		&ban.Target,
		&ban.Reason,
		&ban.BannedBy,
		&ban.CreatedAt,
		&expiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select ban: %w", err)
	}
	ban.Kind = domain.BanKind(rawKind)
	if expiresAt.Valid {
		value := expiresAt.Time
		ban.ExpiresAt = &value
	}

	return &ban, nil
}

// DeleteByTarget removes the ban for the target. Returns repository.ErrNotFound when none exists.
func (r *BanRepository) DeleteByTarget(ctx context.Context, kind domain.BanKind, target string) error {
	stmt, args, err := r.builder.
		Delete("chat.bans").
		Where(squirrel.Eq{"kind": string(kind), "target": target}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete ban sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteExpired removes the ban only if it is still the same row and still expired,
// so a ban replaced between read and delete survives.
func (r *BanRepository) DeleteExpired(ctx context.Context, id string, kind domain.BanKind, reference time.Time) (bool, error) {
	stmt, args, err := r.builder.
		Delete("chat.bans").
		Where(squirrel.Eq{"id": id, "kind": string(kind)}).
		Where(squirrel.Lt{"expires_at": reference}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete expired ban sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete expired ban: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

var _ port.BanRepository = (*BanRepository)(nil)
