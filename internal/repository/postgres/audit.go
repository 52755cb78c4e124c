package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
)

// AuditRepository appends to the admin audit log table.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit repository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{exec: exec, builder: newBuilder()}
}

// Append inserts an audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	var detail any
	if entry.Detail != "" {
		detail = entry.Detail
	}

	stmt, args, err := r.builder.
		Insert("chat.admin_audit_log").
		Columns("id", "admin_id", "action", "target", "detail", "created_at").
		Values(entry.ID, entry.AdminID, string(entry.Action), entry.Target, detail, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
