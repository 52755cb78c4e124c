package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/chat-moderation/internal/usecase"
)

// GuardChecks is the unauthenticated abuse guard surface used by sign-up and sign-in flows.
type GuardChecks interface {
	CheckBan(ctx context.Context, address string) (usecase.BanStatus, error)
	CheckUserBan(ctx context.Context, userID string) (usecase.BanStatus, error)
	CheckAddressLimit(ctx context.Context, address string, maxAccounts int) (usecase.AddressLimit, error)
	RecordAddressUsage(ctx context.Context, userID, address string, email *string) error
}

var guardErrorCases = []ErrorCase{
	{Err: usecase.ErrValidationFailed, Status: http.StatusBadRequest, Code: ErrCodeValidationFailed, Message: "Invalid request"},
	{Err: usecase.ErrStoreUnavailable, Status: http.StatusInternalServerError, Code: ErrCodeServiceUnavailable, Message: "Service temporarily unavailable"},
}

// GuardHandler exposes the network abuse guard checks.
type GuardHandler struct {
	guard GuardChecks
}

// NewGuardHandler constructs GuardHandler.
func NewGuardHandler(guard GuardChecks) *GuardHandler {
	return &GuardHandler{guard: guard}
}

// RegisterRoutes binds the guard routes onto r. Middlewares such as the rate limiter run ahead of every route.
func (h *GuardHandler) RegisterRoutes(r *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	bind := func(path string, handler gin.HandlerFunc) {
		chain := append(append([]gin.HandlerFunc{}, middlewares...), handler)
		r.POST(path, chain...)
	}

	bind("/check-ban", h.CheckBan)
	bind("/check-user-ban", h.CheckUserBan)
	bind("/check-ip-limit", h.CheckIPLimit)
	bind("/record-ip", h.RecordIP)
}

func (h *GuardHandler) available(c *gin.Context) bool {
	if h.guard == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, ErrCodeServiceUnavailable, "guard service unavailable"))
		return false
	}
	return true
}

// CheckBan handles POST /api/v1/guard/check-ban.
func (h *GuardHandler) CheckBan(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req CheckBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	status, err := h.guard.CheckBan(c.Request.Context(), req.IP)
	if err != nil {
		RespondWithMappedError(c, err, guardErrorCases, http.StatusInternalServerError, "failed to check ban")
		return
	}

	c.JSON(http.StatusOK, newBanStatusResponse(status))
}

// CheckUserBan handles POST /api/v1/guard/check-user-ban.
func (h *GuardHandler) CheckUserBan(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req CheckUserBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	status, err := h.guard.CheckUserBan(c.Request.Context(), req.UserID)
	if err != nil {
		RespondWithMappedError(c, err, guardErrorCases, http.StatusInternalServerError, "failed to check ban")
		return
	}

	c.JSON(http.StatusOK, newBanStatusResponse(status))
}

// CheckIPLimit handles POST /api/v1/guard/check-ip-limit.
func (h *GuardHandler) CheckIPLimit(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req CheckIPLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	maxAccounts := 0
	if req.MaxAccounts != nil {
		maxAccounts = *req.MaxAccounts
		if maxAccounts <= 0 {
			body := NewErrorResponse(c, ErrCodeValidationFailed, "maxAccounts must be at least 1")
			body.Fields = map[string]string{"maxAccounts": "must be at least 1"}
			c.JSON(http.StatusBadRequest, body)
			return
		}
	}

	limit, err := h.guard.CheckAddressLimit(c.Request.Context(), req.IP, maxAccounts)
	if err != nil {
		RespondWithMappedError(c, err, guardErrorCases, http.StatusInternalServerError, "failed to check address limit")
		return
	}

	c.JSON(http.StatusOK, IPLimitResponse{
		SuccessResponse: success(""),
		Count:           limit.Count,
		MaxAccounts:     limit.MaxAccounts,
		LimitExceeded:   limit.LimitExceeded,
	})
}

// RecordIP handles POST /api/v1/guard/record-ip.
func (h *GuardHandler) RecordIP(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req RecordIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	if err := h.guard.RecordAddressUsage(c.Request.Context(), req.UserID, req.IP, req.Email); err != nil {
		RespondWithMappedError(c, err, guardErrorCases, http.StatusInternalServerError, "failed to record address usage")
		return
	}

	c.JSON(http.StatusOK, success("Address usage recorded"))
}

func newBanStatusResponse(status usecase.BanStatus) BanStatusResponse {
	return BanStatusResponse{
		SuccessResponse: success(""),
		Banned:          status.Banned,
		Reason:          status.Reason,
		ExpiresAt:       status.ExpiresAt,
	}
}
