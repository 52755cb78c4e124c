package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/repository"
)

var licenseColumns = []string{
	"id",
	"key_hash",
	"key_prefix",
	"plan",
	"validity_days",
	"issued_at",
	"expires_at",
	"issued_by",
	"redeemed_by",
	"redeemed_at",
}

// LicenseRepository implements port.LicenseRepository using PostgreSQL.
type LicenseRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLicenseRepository wires a PostgreSQL-backed license repository.
func NewLicenseRepository(exec pgExecutor) *LicenseRepository {
	return &LicenseRepository{exec: exec, builder: newBuilder()}
}

// Create inserts a new license row. Only the key hash is stored.
func (r *LicenseRepository) Create(ctx context.Context, license domain.License) error {
	stmt, args, err := r.builder.
		Insert("chat.licenses").
		Columns(licenseColumns...).
		Values(
			license.ID,
			license.KeyHash,
			license.KeyPrefix,
			string(license.Plan),
			license.ValidityDays,
			license.IssuedAt,
			license.ExpiresAt,
			license.IssuedBy,
			license.RedeemedBy,
			license.RedeemedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert license sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

// GetByID retrieves a license by identifier.
func (r *LicenseRepository) GetByID(ctx context.Context, id string) (*domain.License, error) {
	stmt, args, err := r.builder.
		Select(licenseColumns...).
		From("chat.licenses").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select license sql: %w", err)
	}

	var (
		license    domain.License
		plan       string
		redeemedBy sql.NullString
		redeemedAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&license.ID,
		&license.KeyHash,
		&license.KeyPrefix,
		&plan,
		&license.ValidityDays,
		&license.IssuedAt,
		&license.ExpiresAt,
		&license.IssuedBy,
		&redeemedBy,
		&redeemedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select license: %w", err)
	}
	license.Plan = domain.LicensePlan(plan)
	if redeemedBy.Valid {
		license.RedeemedBy = &redeemedBy.String
	}
	if redeemedAt.Valid {
		license.RedeemedAt = &redeemedAt.Time
	}

	return &license, nil
}

var _ port.LicenseRepository = (*LicenseRepository)(nil)
