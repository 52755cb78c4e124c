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

// SubjectRepository implements port.SubjectRepository using PostgreSQL.
type SubjectRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSubjectRepository wires a PostgreSQL-backed subject repository.
func NewSubjectRepository(exec pgExecutor) *SubjectRepository {
	return &SubjectRepository{exec: exec, builder: newBuilder()}
}

// GetByID retrieves a subject by identifier.
func (r *SubjectRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	stmt, args, err := r.builder.
		Select("id", "email", "is_admin", "created_at").
		From("chat.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select subject sql: %w", err)
	}

	var (
		subject domain.Subject
		email   sql.NullString
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&subject.ID, &email, &subject.IsAdmin, &subject.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select subject: %w", err)
	}
	subject.Email = email.String

	return &subject, nil
}

// Exists reports whether a subject row exists.
func (r *SubjectRepository) Exists(ctx context.Context, id string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("chat.users").
		Where(squirrel.Eq{"id": id}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build subject exists sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check subject exists: %w", err)
	}
	return exists, nil
}

// SetAdmin writes the admin flag. Returns repository.ErrNotFound when the subject is absent.
func (r *SubjectRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	stmt, args, err := r.builder.
		Update("chat.users").
		Set("is_admin", isAdmin).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update admin flag sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update admin flag: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a subject row. Returns repository.ErrNotFound when the subject is absent.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.
		Delete("chat.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete subject sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.SubjectRepository = (*SubjectRepository)(nil)
