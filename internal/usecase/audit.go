package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/infra/logger"
)

const auditLinePrefix = "[ADMIN_ACTION]"

// AuditSink records completed privileged mutations. Recording is best-effort:
// failures are logged and never reach the caller.
type AuditSink struct {
	repo   port.AuditRepository
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditSink constructs an audit sink. repo and events may be nil.
func NewAuditSink(repo port.AuditRepository, events port.EventPublisher) *AuditSink {
	return &AuditSink{repo: repo, events: events, logger: zap.NewNop(), now: time.Now}
}

// WithLogger sets the logger that receives the [ADMIN_ACTION] lines.
func (a *AuditSink) WithLogger(logger *zap.Logger) *AuditSink {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithNow overrides the clock, primarily for deterministic testing.
func (a *AuditSink) WithNow(now func() time.Time) *AuditSink {
	if now != nil {
		a.now = now
	}
	return a
}

// FormatAuditLine renders the stable text line scraped by external log tooling.
func FormatAuditLine(adminID string, action domain.AuditAction, target, reason string) string {
	if reason == "" {
		reason = "none"
	}
	return fmt.Sprintf("%s %s %s %s. Reason: %s", auditLinePrefix,
		escapeAuditField(adminID), action.Verb(), escapeAuditField(target), escapeAuditField(reason))
}

// escapeAuditField rewrites non-printable runes as Go escape sequences so a
// caller supplied value can never break the line apart.
func escapeAuditField(s string) string {
	if strings.IndexFunc(s, func(r rune) bool { return !strconv.IsPrint(r) }) < 0 {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strconv.IsPrint(r) {
			b.WriteRune(r)
			continue
		}
		q := strconv.QuoteRune(r)
		b.WriteString(q[1 : len(q)-1])
	}
	return b.String()
}

// Record writes the audit line, persists the entry and publishes the moderation event.
func (a *AuditSink) Record(ctx context.Context, admin domain.AdminIdentity, action domain.AuditAction, target, detail string) {
	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		AdminID:   admin.SubjectID,
		Action:    action,
		Target:    target,
		Detail:    detail,
		CreatedAt: a.now().UTC(),
	}

	log := logger.WithContext(ctx, a.logger)
	log.Info(FormatAuditLine(entry.AdminID, action, target, detail),
		zap.String("audit_id", entry.ID),
		zap.String("action", string(action)),
	)

	if a.repo != nil {
		if err := a.repo.Append(ctx, entry); err != nil {
			log.Error("audit append failed",
				zap.String("audit_id", entry.ID),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
	}

	if a.events == nil {
		return
	}

	metadata := map[string]any{}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	event := domain.ModerationEvent{
		EventID:    entry.ID,
		Action:     action,
		AdminID:    entry.AdminID,
		Target:     target,
		Detail:     detail,
		OccurredAt: entry.CreatedAt,
		Metadata:   metadata,
	}
	if err := a.events.PublishModerationAction(ctx, event); err != nil {
		log.Warn("moderation event publish failed",
			zap.String("audit_id", entry.ID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}
