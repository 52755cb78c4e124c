package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/infra/security"
	"github.com/arklim/chat-moderation/internal/infra/validation"
	"github.com/arklim/chat-moderation/internal/repository"
)

const tracerName = "github.com/arklim/chat-moderation/internal/usecase"

// Outcome labels reported to ModerationMetrics.
const (
	OutcomeSuccess          = "success"
	OutcomeValidationFailed = "validation_failed"
	OutcomeUnauthorized     = "unauthorized"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

// ModerationMetrics captures per-action outcome counts.
type ModerationMetrics interface {
	RecordAction(action, outcome string)
}

// BanUserCommand bans an existing subject for a number of days.
type BanUserCommand struct {
	IDToken      string `json:"idToken" validate:"required,min=10,max=3000,token"`
	UserID       string `json:"userId" mod:"trim" validate:"required,min=10,max=100"`
	Reason       string `json:"reason" mod:"trim" validate:"required,min=5,max=500"`
	DurationDays int    `json:"duration" validate:"required,min=1,max=36500"`
}

// BanIPCommand bans a network address for a number of days.
type BanIPCommand struct {
	IDToken      string `json:"idToken" validate:"required,min=10,max=3000,token"`
	IP           string `json:"ip" mod:"trim" validate:"required,ip"`
	Reason       string `json:"reason" mod:"trim" validate:"required,min=5,max=500"`
	DurationDays int    `json:"duration" validate:"required,min=1,max=36500"`
}

// UnbanIPCommand lifts a network address ban.
type UnbanIPCommand struct {
	IDToken string `json:"idToken" validate:"required,min=10,max=3000,token"`
	IP      string `json:"ip" mod:"trim" validate:"required,ip"`
	Reason  string `json:"reason,omitempty" mod:"trim" validate:"omitempty,min=5,max=500"`
}

// DeleteUserCommand irreversibly removes a subject.
type DeleteUserCommand struct {
	IDToken string `json:"idToken" validate:"required,min=10,max=3000,token"`
	UserID  string `json:"userId" mod:"trim" validate:"required,min=10,max=100"`
	Reason  string `json:"reason,omitempty" mod:"trim" validate:"omitempty,min=5,max=500"`
}

// CreateLicenseCommand issues a new license key.
type CreateLicenseCommand struct {
	IDToken      string `json:"idToken" validate:"required,min=10,max=3000,token"`
	Plan         string `json:"plan" mod:"trim" validate:"required,oneof=Basic Pro Enterprise"`
	ValidityDays int    `json:"validityDays" validate:"required,min=1,max=3650"`
}

// SetAdminCommand grants or revokes the admin flag of a subject.
type SetAdminCommand struct {
	IDToken string `json:"idToken" validate:"required,min=10,max=3000,token"`
	UserID  string `json:"userId" mod:"trim" validate:"required,min=10,max=100"`
	Grant   *bool  `json:"grant" validate:"required"`
	Reason  string `json:"reason,omitempty" mod:"trim" validate:"omitempty,min=5,max=500"`
}

type privilegedCommand interface {
	idToken() string
}

func (c *BanUserCommand) idToken() string       { return c.IDToken }
func (c *BanIPCommand) idToken() string         { return c.IDToken }
func (c *UnbanIPCommand) idToken() string       { return c.IDToken }
func (c *DeleteUserCommand) idToken() string    { return c.IDToken }
func (c *CreateLicenseCommand) idToken() string { return c.IDToken }
func (c *SetAdminCommand) idToken() string      { return c.IDToken }

// BanResult describes a stored ban.
type BanResult struct {
	BanID     string
	Kind      domain.BanKind
	Target    string
	ExpiresAt time.Time
}

// LicenseResult carries the plaintext key. It is the only place the key is ever exposed.
type LicenseResult struct {
	LicenseID    string
	Key          string
	Plan         domain.LicensePlan
	ValidityDays int
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// ModerationService runs privileged moderation actions through validation,
// identity verification and the privilege gate before touching the store.
type ModerationService struct {
	validator *validation.Validator
	verifier  *IdentityVerifier
	gate      *PrivilegeGate
	subjects  port.SubjectRepository
	bans      port.BanRepository
	licenses  port.LicenseRepository
	audit     *AuditSink
	remover   port.IdentityAccountRemover
	metrics   ModerationMetrics
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time
	newKey    func() (string, error)
}

// NewModerationService constructs the moderation engine.
func NewModerationService(
	validator *validation.Validator,
	verifier *IdentityVerifier,
	gate *PrivilegeGate,
	subjects port.SubjectRepository,
	bans port.BanRepository,
	licenses port.LicenseRepository,
	audit *AuditSink,
) *ModerationService {
	if validator == nil {
		validator = validation.New()
	}
	if audit == nil {
		audit = NewAuditSink(nil, nil)
	}
	return &ModerationService{
		validator: validator,
		verifier:  verifier,
		gate:      gate,
		subjects:  subjects,
		bans:      bans,
		licenses:  licenses,
		audit:     audit,
		tracer:    otel.Tracer(tracerName),
		logger:    zap.NewNop(),
		now:       time.Now,
		newKey:    security.GenerateLicenseKey,
	}
}

// WithLogger attaches a structured logger.
func (s *ModerationService) WithLogger(logger *zap.Logger) *ModerationService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *ModerationService) WithNow(now func() time.Time) *ModerationService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires the per-action outcome counter.
func (s *ModerationService) WithMetrics(metrics ModerationMetrics) *ModerationService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithTracer overrides the tracer used for moderation spans.
func (s *ModerationService) WithTracer(tracer trace.Tracer) *ModerationService {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// WithAccountRemover wires removal of the identity provider account on user deletion.
func (s *ModerationService) WithAccountRemover(remover port.IdentityAccountRemover) *ModerationService {
	if remover != nil {
		s.remover = remover
	}
	return s
}

// BanUser bans an existing subject. Banning does not modify the subject record.
func (s *ModerationService) BanUser(ctx context.Context, cmd BanUserCommand) (result BanResult, err error) {
	ctx, span := s.start(ctx, domain.AuditBanUser)
	defer func() { s.finish(span, domain.AuditBanUser, err) }()

	admin, err := s.authorize(ctx, &cmd)
	if err != nil {
		return BanResult{}, err
	}

	exists, err := s.subjects.Exists(ctx, cmd.UserID)
	if err != nil {
		return BanResult{}, storeUnavailable("lookup ban target", err)
	}
	if !exists {
		return BanResult{}, ErrTargetNotFound
	}

	result, err = s.storeBan(ctx, admin, domain.BanKindUser, cmd.UserID, cmd.Reason, cmd.DurationDays)
	if err != nil {
		return BanResult{}, err
	}

	s.audit.Record(ctx, admin, domain.AuditBanUser, cmd.UserID, cmd.Reason)
	return result, nil
}

// BanIP bans a network address. Any syntactically valid address may be banned.
func (s *ModerationService) BanIP(ctx context.Context, cmd BanIPCommand) (result BanResult, err error) {
	ctx, span := s.start(ctx, domain.AuditBanIP)
	defer func() { s.finish(span, domain.AuditBanIP, err) }()

	admin, err := s.authorize(ctx, &cmd)
	if err != nil {
		return BanResult{}, err
	}

	address, err := canonicalAddress(cmd.IP)
	if err != nil {
		return BanResult{}, fieldViolation("ip", "ip", "must be a valid IPv4 or IPv6 address")
	}

	result, err = s.storeBan(ctx, admin, domain.BanKindIP, address, cmd.Reason, cmd.DurationDays)
	if err != nil {
		return BanResult{}, err
	}

	s.audit.Record(ctx, admin, domain.AuditBanIP, address, cmd.Reason)
	return result, nil
}

// UnbanIP lifts an address ban. ErrTargetNotFound is returned when no ban exists.
func (s *ModerationService) UnbanIP(ctx context.Context, cmd UnbanIPCommand) (err error) {
	ctx, span := s.start(ctx, domain.AuditUnbanIP)
	defer func() { s.finish(span, domain.AuditUnbanIP, err) }()

	admin, err := s.authorize(ctx, &cmd)
	if err != nil {
		return err
	}

	address, err := canonicalAddress(cmd.IP)
	if err != nil {
		return fieldViolation("ip", "ip", "must be a valid IPv4 or IPv6 address")
	}

	if err := s.bans.DeleteByTarget(ctx, domain.BanKindIP, address); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTargetNotFound
		}
		return storeUnavailable("delete ip ban", err)
	}

	s.audit.Record(ctx, admin, domain.AuditUnbanIP, address, cmd.Reason)
	return nil
}

// DeleteUser removes the subject record and then the identity provider account.
// A provider-side failure is logged; the subject deletion stands.
func (s *ModerationService) DeleteUser(ctx context.Context, cmd DeleteUserCommand) (err error) {
	ctx, span := s.start(ctx, domain.AuditDeleteUser)
	defer func() { s.finish(span, domain.AuditDeleteUser, err) }()

	admin, err := s.authorize(ctx, &cmd)
	if err != nil {
		return err
	}

	if err := s.subjects.Delete(ctx, cmd.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTargetNotFound
		}
		return storeUnavailable("delete subject", err)
	}

	if s.remover != nil {
		if err := s.remover.RemoveAccount(ctx, cmd.UserID); err != nil {
			s.logger.Error("identity account removal failed",
				zap.String("subject_id", cmd.UserID),
				zap.String("admin_id", admin.SubjectID),
				zap.Error(err),
			)
		}
	}

	s.audit.Record(ctx, admin, domain.AuditDeleteUser, cmd.UserID, cmd.Reason)
	return nil
}

// CreateLicense issues a license and returns its plaintext key exactly once.
// Only the key hash and a short prefix are persisted.
func (s *ModerationService) CreateLicense(ctx context.Context, cmd CreateLicenseCommand) (result LicenseResult, err error) {
	ctx, span := s.start(ctx, domain.AuditCreateLicense)
	defer func() { s.finish(span, domain.AuditCreateLicense, err) }()

	admin, err := s.authorize(ctx, &cmd)
	if err != nil {
		return LicenseResult{}, err
	}

	plan := domain.LicensePlan(cmd.Plan)
	if !plan.Valid() {
		return LicenseResult{}, fieldViolation("plan", "oneof", "must be one of: Basic, Pro, Enterprise")
	}

	key, err := s.newKey()
	if err != nil {
		return LicenseResult{}, fmt.Errorf("generate license key: %w", err)
	}

	issuedAt := s.now().UTC()
	license := domain.License{
		ID:           uuid.NewString(),
		KeyHash:      security.HashToken(key),
		KeyPrefix:    security.LicenseKeyPrefix(key),
		Plan:         plan,
		ValidityDays: cmd.ValidityDays,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.AddDate(0, 0, cmd.ValidityDays),
		IssuedBy:     admin.SubjectID,
	}

	if err := s.licenses.Create(ctx, license); err != nil {
		return LicenseResult{}, storeUnavailable("create license", err)
	}

	s.audit.Record(ctx, admin, domain.AuditCreateLicense, license.ID,
		fmt.Sprintf("%s license valid for %d days", plan, cmd.ValidityDays))

	return LicenseResult{
		LicenseID:    license.ID,
		Key:          key,
		Plan:         plan,
		ValidityDays: license.ValidityDays,
		IssuedAt:     license.IssuedAt,
		ExpiresAt:    license.ExpiresAt,
	}, nil
}

// SetAdmin grants or revokes the admin flag of a subject. This is the only write path for the flag.
// Admins cannot revoke their own flag.
func (s *ModerationService) SetAdmin(ctx context.Context, cmd SetAdminCommand) (err error) {
	action := domain.AuditRevokeAdmin
	if cmd.Grant != nil && *cmd.Grant {
		action = domain.AuditGrantAdmin
	}

	ctx, span := s.start(ctx, action)
	defer func() { s.finish(span, action, err) }()

	admin, err := s.authorize(ctx, &cmd)
	if err != nil {
		return err
	}

	grant := *cmd.Grant
	if !grant && cmd.UserID == admin.SubjectID {
		return fieldViolation("userId", "self_revoke", "cannot revoke your own admin access")
	}

	if err := s.subjects.SetAdmin(ctx, cmd.UserID, grant); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTargetNotFound
		}
		return storeUnavailable("set admin flag", err)
	}

	s.audit.Record(ctx, admin, action, cmd.UserID, cmd.Reason)
	return nil
}

func (s *ModerationService) authorize(ctx context.Context, cmd privilegedCommand) (domain.AdminIdentity, error) {
	if err := s.validator.Struct(cmd); err != nil {
		return domain.AdminIdentity{}, validationFailed(err)
	}

	identity, err := s.verifier.Verify(ctx, cmd.idToken())
	if err != nil {
		return domain.AdminIdentity{}, err
	}

	admin, err := s.gate.RequireAdmin(ctx, identity)
	if err != nil {
		s.logger.Warn("privileged request denied", zap.String("subject_id", identity.SubjectID))
		return domain.AdminIdentity{}, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("moderation.admin_id", admin.SubjectID))
	return admin, nil
}

func (s *ModerationService) storeBan(ctx context.Context, admin domain.AdminIdentity, kind domain.BanKind, target, reason string, days int) (BanResult, error) {
	createdAt := s.now().UTC()
	expiresAt := createdAt.AddDate(0, 0, days)

	stored, err := s.bans.Upsert(ctx, domain.BanRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		Reason:    reason,
		BannedBy:  admin.SubjectID,
		CreatedAt: createdAt,
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		return BanResult{}, storeUnavailable("store ban", err)
	}

	return BanResult{BanID: stored.ID, Kind: kind, Target: target, ExpiresAt: expiresAt}, nil
}

func (s *ModerationService) start(ctx context.Context, action domain.AuditAction) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "moderation."+string(action),
		trace.WithAttributes(attribute.String("moderation.action", string(action))),
	)
}

func (s *ModerationService) finish(span trace.Span, action domain.AuditAction, err error) {
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("moderation.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if s.metrics != nil {
		s.metrics.RecordAction(string(action), outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrValidationFailed):
		return OutcomeValidationFailed
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrNotAdmin):
		return OutcomeUnauthorized
	case errors.Is(err, ErrTargetNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
