package usecase

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
	"github.com/arklim/chat-moderation/internal/infra/logger"
	"github.com/arklim/chat-moderation/internal/infra/validation"
	"github.com/arklim/chat-moderation/internal/repository"
)

const defaultMaxAccountsPerAddress = 3

// Guard check labels reported to GuardMetrics.
const (
	checkAddressBan   = "address_ban"
	checkUserBan      = "user_ban"
	checkAddressLimit = "address_limit"

	resultBanned   = "banned"
	resultClear    = "clear"
	resultExpired  = "expired"
	resultExceeded = "exceeded"
	resultWithin   = "within"
)

// GuardMetrics captures guard decisions.
type GuardMetrics interface {
	RecordCheck(check, result string)
}

// BanStatus reports whether a target is currently banned.
type BanStatus struct {
	Banned    bool
	Reason    string
	ExpiresAt *time.Time
}

// AddressLimit reports how many subjects are linked to an address.
type AddressLimit struct {
	Count         int
	MaxAccounts   int
	LimitExceeded bool
}

// AbuseGuardOptions configures the network abuse guard.
type AbuseGuardOptions struct {
	// MaxAccountsPerAddress applies when a caller does not supply its own limit.
	MaxAccountsPerAddress int
}

// AbuseGuard answers pre-authentication ban and address-limit checks.
// Ban expiry is evaluated lazily: an expired ban is deleted by the first read that observes it.
type AbuseGuard struct {
	validator  *validation.Validator
	bans       port.BanRepository
	usage      port.AddressUsageRepository
	maxPerAddr int
	logger     *zap.Logger
	metrics    GuardMetrics
	now        func() time.Time
}

// NewAbuseGuard constructs the guard.
func NewAbuseGuard(validator *validation.Validator, bans port.BanRepository, usage port.AddressUsageRepository, opts AbuseGuardOptions) *AbuseGuard {
	if validator == nil {
		validator = validation.New()
	}
	maxPerAddr := opts.MaxAccountsPerAddress
	if maxPerAddr <= 0 {
		maxPerAddr = defaultMaxAccountsPerAddress
	}
	return &AbuseGuard{
		validator:  validator,
		bans:       bans,
		usage:      usage,
		maxPerAddr: maxPerAddr,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
}

// WithLogger attaches a structured logger.
func (g *AbuseGuard) WithLogger(logger *zap.Logger) *AbuseGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithMetrics wires the guard decision counter.
func (g *AbuseGuard) WithMetrics(metrics GuardMetrics) *AbuseGuard {
	if metrics != nil {
		g.metrics = metrics
	}
	return g
}

// WithNow overrides the clock, primarily for deterministic testing.
func (g *AbuseGuard) WithNow(now func() time.Time) *AbuseGuard {
	if now != nil {
		g.now = now
	}
	return g
}

// CheckBan reports whether the address is banned.
func (g *AbuseGuard) CheckBan(ctx context.Context, address string) (BanStatus, error) {
	canonical, err := g.address(address)
	if err != nil {
		return BanStatus{}, err
	}
	return g.checkBan(ctx, checkAddressBan, domain.BanKindIP, canonical)
}

// CheckUserBan reports whether the subject is banned. Used by the sign-in path.
func (g *AbuseGuard) CheckUserBan(ctx context.Context, userID string) (BanStatus, error) {
	userID = strings.TrimSpace(userID)
	if err := g.validator.Var("userId", userID, "required,min=10,max=100"); err != nil {
		return BanStatus{}, validationFailed(err)
	}
	return g.checkBan(ctx, checkUserBan, domain.BanKindUser, userID)
}

// CheckAddressLimit counts subjects linked to the address. A non-positive maxAccounts uses the configured default.
// Enforcement is left to the caller.
func (g *AbuseGuard) CheckAddressLimit(ctx context.Context, address string, maxAccounts int) (AddressLimit, error) {
	canonical, err := g.address(address)
	if err != nil {
		return AddressLimit{}, err
	}
	if maxAccounts <= 0 {
		maxAccounts = g.maxPerAddr
	}
	if err := g.validator.Var("maxAccounts", maxAccounts, "min=1,max=1000"); err != nil {
		return AddressLimit{}, validationFailed(err)
	}

	count, err := g.usage.CountByAddress(ctx, canonical)
	if err != nil {
		return AddressLimit{}, storeUnavailable("count address usage", err)
	}

	limit := AddressLimit{
		Count:         count,
		MaxAccounts:   maxAccounts,
		LimitExceeded: count >= maxAccounts,
	}
	if limit.LimitExceeded {
		g.record(checkAddressLimit, resultExceeded)
	} else {
		g.record(checkAddressLimit, resultWithin)
	}
	return limit, nil
}

// RecordAddressUsage links the subject to the address. Repeated calls for the same pair
// refresh last-used time only.
func (g *AbuseGuard) RecordAddressUsage(ctx context.Context, userID, address string, email *string) error {
	userID = strings.TrimSpace(userID)
	if err := g.validator.Var("userId", userID, "required,min=10,max=100"); err != nil {
		return validationFailed(err)
	}
	canonical, err := g.address(address)
	if err != nil {
		return err
	}

	var normalizedEmail *string
	if email != nil {
		trimmed := strings.TrimSpace(*email)
		if trimmed != "" {
			if err := g.validator.Var("email", trimmed, "email,max=320"); err != nil {
				return validationFailed(err)
			}
			normalizedEmail = &trimmed
		}
	}

	now := g.now().UTC()
	created, err := g.usage.Touch(ctx, domain.AddressUsage{
		UserID:     userID,
		Address:    canonical,
		Email:      normalizedEmail,
		RecordedAt: now,
		LastUsed:   now,
	})
	if err != nil {
		return storeUnavailable("record address usage", err)
	}

	if created {
		fields := []zap.Field{
			zap.String("subject_id", userID),
			zap.String("address", logger.MaskIP(canonical)),
		}
		if normalizedEmail != nil {
			fields = append(fields, zap.String("email", logger.MaskEmail(*normalizedEmail)))
		}
		logger.WithContext(ctx, g.logger).Debug("address usage recorded", fields...)
	}
	return nil
}

func (g *AbuseGuard) checkBan(ctx context.Context, check string, kind domain.BanKind, target string) (BanStatus, error) {
	ban, err := g.bans.GetByTarget(ctx, kind, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			g.record(check, resultClear)
			return BanStatus{}, nil
		}
		return BanStatus{}, storeUnavailable("lookup ban", err)
	}

	now := g.now().UTC()
	if ban.ExpiredAt(now) {
		if _, err := g.bans.DeleteExpired(ctx, ban.ID, kind, now); err != nil {
			g.logger.Warn("expired ban cleanup failed",
				zap.String("ban_id", ban.ID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
		g.record(check, resultExpired)
		return BanStatus{}, nil
	}

	g.record(check, resultBanned)
	return BanStatus{Banned: true, Reason: ban.Reason, ExpiresAt: ban.ExpiresAt}, nil
}

func (g *AbuseGuard) record(check, result string) {
	if g.metrics != nil {
		g.metrics.RecordCheck(check, result)
	}
}

func (g *AbuseGuard) address(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if err := g.validator.Var("ip", raw, "required,ip"); err != nil {
		return "", validationFailed(err)
	}
	canonical, err := canonicalAddress(raw)
	if err != nil {
		return "", fieldViolation("ip", "ip", "must be a valid IPv4 or IPv6 address")
	}
	return canonical, nil
}

// canonicalAddress renders an IP literal in its canonical form, unmapping IPv4-in-IPv6.
func canonicalAddress(raw string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return addr.Unmap().String(), nil
}
