package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/infra/security"
	"github.com/arklim/chat-moderation/internal/infra/validation"
)

type moderationHarness struct {
	service   *ModerationService
	idp       *stubIdentityProvider
	subjects  *stubSubjectRepo
	bans      *stubBanRepo
	licenses  *stubLicenseRepo
	audit     *stubAuditRepo
	publisher *stubPublisher
	metrics   *stubModerationMetrics
	logs      *observer.ObservedLogs
	now       time.Time
}

func newModerationHarness(t *testing.T) *moderationHarness {
	t.Helper()

	h := &moderationHarness{
		idp: &stubIdentityProvider{subjects: map[string]string{
			adminToken:  adminID,
			memberToken: memberID,
		}},
		subjects: newStubSubjectRepo(
			domain.Subject{ID: adminID, IsAdmin: true},
			domain.Subject{ID: memberID},
			domain.Subject{ID: targetUserID},
		),
		bans:      newStubBanRepo(),
		licenses:  newStubLicenseRepo(),
		audit:     &stubAuditRepo{},
		publisher: &stubPublisher{},
		metrics:   &stubModerationMetrics{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	core, logs := observer.New(zap.InfoLevel)
	h.logs = logs
	log := zap.New(core)
	clock := func() time.Time { return h.now }

	h.service = NewModerationService(
		validation.New(),
		NewIdentityVerifier(h.idp),
		NewPrivilegeGate(h.subjects).WithNow(clock),
		h.subjects,
		h.bans,
		h.licenses,
		NewAuditSink(h.audit, h.publisher).WithLogger(log).WithNow(clock),
	).WithNow(clock).WithMetrics(h.metrics).WithLogger(log)

	return h
}

func TestBanUserStoresBanAndAudits(t *testing.T) {
	h := newModerationHarness(t)

	result, err := h.service.BanUser(context.Background(), BanUserCommand{
		IDToken:      adminToken,
		UserID:       targetUserID,
		Reason:       "  spamming links  ",
		DurationDays: 7,
	})
	if err != nil {
		t.Fatalf("BanUser returned error: %v", err)
	}

	wantExpiry := h.now.AddDate(0, 0, 7)
	if !result.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %s, got %s", wantExpiry, result.ExpiresAt)
	}
	if result.BanID == "" {
		t.Fatal("expected ban id")
	}

	ban, ok := h.bans.bans[banKey{domain.BanKindUser, targetUserID}]
	if !ok {
		t.Fatal("expected user ban to be stored")
	}
	if ban.Reason != "spamming links" {
		t.Fatalf("expected trimmed reason, got %q", ban.Reason)
	}
	if ban.BannedBy != adminID {
		t.Fatalf("expected ban attributed to admin, got %s", ban.BannedBy)
	}

	if len(h.audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(h.audit.entries))
	}
	entry := h.audit.entries[0]
	if entry.Action != domain.AuditBanUser || entry.AdminID != adminID || entry.Target != targetUserID {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}

	lines := h.logs.FilterMessage("[ADMIN_ACTION] admin-subject-01 banned user target-user-0001. Reason: spamming links").Len()
	if lines != 1 {
		t.Fatalf("expected admin action log line, got %d", lines)
	}
	if len(h.publisher.events) != 1 {
		t.Fatalf("expected one moderation event, got %d", len(h.publisher.events))
	}
	if h.metrics.counts["ban_user/success"] != 1 {
		t.Fatalf("expected success metric, got %v", h.metrics.counts)
	}
}

func TestBanUserUnknownTargetCreatesNoBan(t *testing.T) {
	h := newModerationHarness(t)

	_, err := h.service.BanUser(context.Background(), BanUserCommand{
		IDToken:      adminToken,
		UserID:       "nonexistent-user-id-000",
		Reason:       "spam spam",
		DurationDays: 7,
	})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
	if len(h.bans.bans) != 0 {
		t.Fatalf("expected no ban records, got %d", len(h.bans.bans))
	}
	if len(h.audit.entries) != 0 {
		t.Fatal("failed actions must not be audited")
	}
	if h.metrics.counts["ban_user/not_found"] != 1 {
		t.Fatalf("expected not_found metric, got %v", h.metrics.counts)
	}
}

func TestBanUserShortReasonIsRejected(t *testing.T) {
	h := newModerationHarness(t)

	_, err := h.service.BanUser(context.Background(), BanUserCommand{
		IDToken:      adminToken,
		UserID:       targetUserID,
		Reason:       "spam",
		DurationDays: 7,
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation details, got %T", err)
	}
	if _, ok := verr.Messages()["reason"]; !ok {
		t.Fatalf("expected reason violation, got %v", verr.Messages())
	}
}

func TestInvalidTokensNeverReachTheStore(t *testing.T) {
	tokens := []string{
		"",
		"short",
		"has spaces in it",
		"bad/chars+here==",
		"emoji-☺-token",
		strings.Repeat("a", 3001),
	}

	for _, token := range tokens {
		h := newModerationHarness(t)
		ctx := context.Background()

		_, banErr := h.service.BanUser(ctx, BanUserCommand{IDToken: token, UserID: targetUserID, Reason: "spamming links", DurationDays: 1})
		_, ipErr := h.service.BanIP(ctx, BanIPCommand{IDToken: token, IP: "1.2.3.4", Reason: "spamming links", DurationDays: 1})
		delErr := h.service.DeleteUser(ctx, DeleteUserCommand{IDToken: token, UserID: targetUserID})
		_, licErr := h.service.CreateLicense(ctx, CreateLicenseCommand{IDToken: token, Plan: "Pro", ValidityDays: 365})

		for _, err := range []error{banErr, ipErr, delErr, licErr} {
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("token %q: expected ErrValidationFailed, got %v", token, err)
			}
		}
		if h.idp.calls != 0 {
			t.Fatalf("token %q: identity provider called %d times", token, h.idp.calls)
		}
		if h.subjects.calls+h.bans.calls+h.licenses.calls != 0 {
			t.Fatalf("token %q: store touched (subjects=%d bans=%d licenses=%d)",
				token, h.subjects.calls, h.bans.calls, h.licenses.calls)
		}
	}
}

func TestNonAdminIsRejected(t *testing.T) {
	h := newModerationHarness(t)

	_, err := h.service.BanIP(context.Background(), BanIPCommand{
		IDToken:      memberToken,
		IP:           "1.2.3.4",
		Reason:       "spamming links",
		DurationDays: 1,
	})
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if len(h.bans.bans) != 0 {
		t.Fatal("non-admin must not create bans")
	}
	if h.metrics.counts["ban_ip/unauthorized"] != 1 {
		t.Fatalf("expected unauthorized metric, got %v", h.metrics.counts)
	}
}

func TestUnknownTokenIsTokenInvalid(t *testing.T) {
	h := newModerationHarness(t)

	err := h.service.DeleteUser(context.Background(), DeleteUserCommand{
		IDToken: "forged-token-0001",
		UserID:  targetUserID,
	})
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, ok := h.subjects.subjects[targetUserID]; !ok {
		t.Fatal("target must survive a rejected delete")
	}
}

func TestRevokedAdminLosesAccessImmediately(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()
	cmd := BanIPCommand{IDToken: adminToken, IP: "1.2.3.4", Reason: "spamming links", DurationDays: 1}

	if _, err := h.service.BanIP(ctx, cmd); err != nil {
		t.Fatalf("first BanIP returned error: %v", err)
	}

	if err := h.subjects.SetAdmin(ctx, adminID, false); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}

	if _, err := h.service.BanIP(ctx, cmd); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin after revocation, got %v", err)
	}
}

func TestBanIPCanonicalisesAddressAndReplacesExisting(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	if _, err := h.service.BanIP(ctx, BanIPCommand{IDToken: adminToken, IP: "::ffff:1.2.3.4", Reason: "first offence", DurationDays: 1}); err != nil {
		t.Fatalf("BanIP returned error: %v", err)
	}
	result, err := h.service.BanIP(ctx, BanIPCommand{IDToken: adminToken, IP: "1.2.3.4", Reason: "second offence", DurationDays: 30})
	if err != nil {
		t.Fatalf("BanIP returned error: %v", err)
	}

	if len(h.bans.bans) != 1 {
		t.Fatalf("expected a single ban for the address, got %d", len(h.bans.bans))
	}
	ban := h.bans.bans[banKey{domain.BanKindIP, "1.2.3.4"}]
	if ban.Reason != "second offence" {
		t.Fatalf("expected replaced reason, got %q", ban.Reason)
	}
	if result.Target != "1.2.3.4" {
		t.Fatalf("unexpected canonical target %q", result.Target)
	}
}

func TestBanIPRejectsMalformedAddress(t *testing.T) {
	h := newModerationHarness(t)

	_, err := h.service.BanIP(context.Background(), BanIPCommand{IDToken: adminToken, IP: "999.1.1.1", Reason: "spamming links", DurationDays: 1})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestBanDurationBounds(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	for _, days := range []int{0, -1, 36501} {
		_, err := h.service.BanUser(ctx, BanUserCommand{IDToken: adminToken, UserID: targetUserID, Reason: "spamming links", DurationDays: days})
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("days=%d: expected ErrValidationFailed, got %v", days, err)
		}
	}
	if _, err := h.service.BanUser(ctx, BanUserCommand{IDToken: adminToken, UserID: targetUserID, Reason: "spamming links", DurationDays: 36500}); err != nil {
		t.Fatalf("days=36500: unexpected error %v", err)
	}
}

func TestUnbanIP(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	if err := h.service.UnbanIP(ctx, UnbanIPCommand{IDToken: adminToken, IP: "1.2.3.4"}); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}

	if _, err := h.service.BanIP(ctx, BanIPCommand{IDToken: adminToken, IP: "1.2.3.4", Reason: "spamming links", DurationDays: 1}); err != nil {
		t.Fatalf("BanIP returned error: %v", err)
	}
	if err := h.service.UnbanIP(ctx, UnbanIPCommand{IDToken: adminToken, IP: "1.2.3.4", Reason: "appeal accepted"}); err != nil {
		t.Fatalf("UnbanIP returned error: %v", err)
	}
	if h.bans.has(domain.BanKindIP, "1.2.3.4") {
		t.Fatal("expected ban to be removed")
	}
	if last := h.audit.entries[len(h.audit.entries)-1]; last.Action != domain.AuditUnbanIP {
		t.Fatalf("expected unban audit entry, got %s", last.Action)
	}
}

func TestDeleteUserRemovesSubjectAndAccount(t *testing.T) {
	h := newModerationHarness(t)
	remover := &stubAccountRemover{err: errors.New("idp unavailable")}
	h.service.WithAccountRemover(remover)

	if err := h.service.DeleteUser(context.Background(), DeleteUserCommand{IDToken: adminToken, UserID: targetUserID}); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if _, ok := h.subjects.subjects[targetUserID]; ok {
		t.Fatal("expected subject to be deleted")
	}
	if len(remover.removed) != 1 || remover.removed[0] != targetUserID {
		t.Fatalf("expected account removal for target, got %v", remover.removed)
	}
	if h.logs.FilterMessage("[ADMIN_ACTION] admin-subject-01 deleted user target-user-0001. Reason: none").Len() != 1 {
		t.Fatal("expected delete audit line")
	}
}

func TestDeleteUserUnknownTarget(t *testing.T) {
	h := newModerationHarness(t)

	err := h.service.DeleteUser(context.Background(), DeleteUserCommand{IDToken: adminToken, UserID: "nonexistent-user-id-000"})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestCreateLicenseReturnsKeyOnce(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	first, err := h.service.CreateLicense(ctx, CreateLicenseCommand{IDToken: adminToken, Plan: "Pro", ValidityDays: 365})
	if err != nil {
		t.Fatalf("CreateLicense returned error: %v", err)
	}
	if !strings.HasPrefix(first.Key, "LIC-") {
		t.Fatalf("unexpected key format %q", first.Key)
	}

	stored, err := h.licenses.GetByID(ctx, first.LicenseID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Plan != domain.LicensePlanPro || stored.ValidityDays != 365 {
		t.Fatalf("stored license mismatch: %+v", stored)
	}
	if !stored.ExpiresAt.Equal(h.now.AddDate(0, 0, 365)) {
		t.Fatalf("unexpected expiry %s", stored.ExpiresAt)
	}
	if stored.KeyHash != security.HashToken(first.Key) {
		t.Fatal("stored hash does not match key")
	}
	if strings.Contains(stored.KeyHash, first.Key) {
		t.Fatal("plaintext key must not be stored")
	}

	second, err := h.service.CreateLicense(ctx, CreateLicenseCommand{IDToken: adminToken, Plan: "Pro", ValidityDays: 365})
	if err != nil {
		t.Fatalf("CreateLicense returned error: %v", err)
	}
	if second.Key == first.Key {
		t.Fatal("license key reported twice")
	}

	for _, entry := range h.audit.entries {
		if strings.Contains(entry.Detail, first.Key) || strings.Contains(entry.Target, first.Key) {
			t.Fatal("license key leaked into audit trail")
		}
	}
	for _, entry := range h.logs.All() {
		if strings.Contains(entry.Message, first.Key) {
			t.Fatal("license key leaked into logs")
		}
	}
}

func TestCreateLicenseRejectsUnknownPlan(t *testing.T) {
	h := newModerationHarness(t)

	_, err := h.service.CreateLicense(context.Background(), CreateLicenseCommand{IDToken: adminToken, Plan: "Platinum", ValidityDays: 30})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if len(h.licenses.licenses) != 0 {
		t.Fatal("expected no license to be stored")
	}
}

func TestSetAdminGrantAndRevoke(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()
	grant, revoke := true, false

	if err := h.service.SetAdmin(ctx, SetAdminCommand{IDToken: adminToken, UserID: memberID, Grant: &grant}); err != nil {
		t.Fatalf("grant returned error: %v", err)
	}
	if !h.subjects.isAdmin(memberID) {
		t.Fatal("expected member to be admin")
	}

	if err := h.service.SetAdmin(ctx, SetAdminCommand{IDToken: adminToken, UserID: memberID, Grant: &revoke}); err != nil {
		t.Fatalf("revoke returned error: %v", err)
	}
	if h.subjects.isAdmin(memberID) {
		t.Fatal("expected member admin flag to be revoked")
	}

	actions := []domain.AuditAction{h.audit.entries[0].Action, h.audit.entries[1].Action}
	if actions[0] != domain.AuditGrantAdmin || actions[1] != domain.AuditRevokeAdmin {
		t.Fatalf("unexpected audit actions %v", actions)
	}
}

func TestSetAdminRejectsSelfRevoke(t *testing.T) {
	h := newModerationHarness(t)
	revoke := false

	err := h.service.SetAdmin(context.Background(), SetAdminCommand{IDToken: adminToken, UserID: adminID, Grant: &revoke})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if !h.subjects.isAdmin(adminID) {
		t.Fatal("admin flag must be unchanged")
	}
}

func TestSetAdminRequiresGrantField(t *testing.T) {
	h := newModerationHarness(t)

	err := h.service.SetAdmin(context.Background(), SetAdminCommand{IDToken: adminToken, UserID: memberID})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestStoreFailureIsStoreUnavailableAndNotAudited(t *testing.T) {
	h := newModerationHarness(t)
	h.bans.upsertErr = errStoreDown

	_, err := h.service.BanIP(context.Background(), BanIPCommand{IDToken: adminToken, IP: "1.2.3.4", Reason: "spamming links", DurationDays: 1})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(h.audit.entries) != 0 {
		t.Fatal("failed actions must not be audited")
	}
	if h.metrics.counts["ban_ip/error"] != 1 {
		t.Fatalf("expected error metric, got %v", h.metrics.counts)
	}
}

func TestAuditFailureDoesNotFailAction(t *testing.T) {
	h := newModerationHarness(t)
	h.audit.err = errStoreDown
	h.publisher.err = errors.New("broker down")

	if _, err := h.service.BanIP(context.Background(), BanIPCommand{IDToken: adminToken, IP: "1.2.3.4", Reason: "spamming links", DurationDays: 1}); err != nil {
		t.Fatalf("expected audit failure to be swallowed, got %v", err)
	}
	if !h.bans.has(domain.BanKindIP, "1.2.3.4") {
		t.Fatal("expected ban to be stored")
	}
}

func TestModerationSpansCarryOutcome(t *testing.T) {
	h := newModerationHarness(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	h.service.WithTracer(provider.Tracer("test"))

	_, _ = h.service.BanIP(context.Background(), BanIPCommand{IDToken: memberToken, IP: "1.2.3.4", Reason: "spamming links", DurationDays: 1})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Name() != "moderation.ban_ip" {
		t.Fatalf("unexpected span name %s", spans[0].Name())
	}
	found := false
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "moderation.outcome" && attr.Value.AsString() == OutcomeUnauthorized {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unauthorized outcome attribute, got %v", spans[0].Attributes())
	}
}
