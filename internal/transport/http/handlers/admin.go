package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/chat-moderation/internal/usecase"
)

// ModerationActions is the privileged moderation surface exposed over HTTP.
type ModerationActions interface {
	BanUser(ctx context.Context, cmd usecase.BanUserCommand) (usecase.BanResult, error)
	BanIP(ctx context.Context, cmd usecase.BanIPCommand) (usecase.BanResult, error)
	UnbanIP(ctx context.Context, cmd usecase.UnbanIPCommand) error
	DeleteUser(ctx context.Context, cmd usecase.DeleteUserCommand) error
	CreateLicense(ctx context.Context, cmd usecase.CreateLicenseCommand) (usecase.LicenseResult, error)
	SetAdmin(ctx context.Context, cmd usecase.SetAdminCommand) error
}

// AdminHandler exposes the moderation endpoints. Every request carries the caller's ID token in its body;
// authorization happens inside the use cases.
type AdminHandler struct {
	service ModerationActions
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(service ModerationActions) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes binds the admin routes onto r.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/ban-user", h.BanUser)
	r.POST("/ban-ip", h.BanIP)
	r.POST("/unban-ip", h.UnbanIP)
	r.POST("/delete-user", h.DeleteUser)
	r.POST("/create-license", h.CreateLicense)
	r.POST("/set-admin", h.SetAdmin)
}

func (h *AdminHandler) available(c *gin.Context) bool {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, ErrCodeServiceUnavailable, "moderation service unavailable"))
		return false
	}
	return true
}

// BanUser handles POST /api/v1/admin/ban-user.
func (h *AdminHandler) BanUser(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req BanUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	result, err := h.service.BanUser(c.Request.Context(), usecase.BanUserCommand{
		IDToken:      req.IDToken,
		UserID:       req.UserID,
		Reason:       req.Reason,
		DurationDays: req.Duration,
	})
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to ban user")
		return
	}

	c.JSON(http.StatusOK, BanResponse{
		SuccessResponse: success("User banned"),
		BanID:           result.BanID,
		UserID:          result.Target,
		ExpiresAt:       result.ExpiresAt,
	})
}

// BanIP handles POST /api/v1/admin/ban-ip.
func (h *AdminHandler) BanIP(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req BanIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	result, err := h.service.BanIP(c.Request.Context(), usecase.BanIPCommand{
		IDToken:      req.IDToken,
		IP:           req.IP,
		Reason:       req.Reason,
		DurationDays: req.Duration,
	})
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to ban IP")
		return
	}

	c.JSON(http.StatusOK, BanResponse{
		SuccessResponse: success("IP banned"),
		BanID:           result.BanID,
		IP:              result.Target,
		ExpiresAt:       result.ExpiresAt,
	})
}

// UnbanIP handles POST /api/v1/admin/unban-ip.
func (h *AdminHandler) UnbanIP(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req UnbanIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	err := h.service.UnbanIP(c.Request.Context(), usecase.UnbanIPCommand{
		IDToken: req.IDToken,
		IP:      req.IP,
		Reason:  req.Reason,
	})
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to unban IP")
		return
	}

	c.JSON(http.StatusOK, success("IP unbanned"))
}

// DeleteUser handles POST /api/v1/admin/delete-user.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req DeleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	err := h.service.DeleteUser(c.Request.Context(), usecase.DeleteUserCommand{
		IDToken: req.IDToken,
		UserID:  req.UserID,
		Reason:  req.Reason,
	})
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to delete user")
		return
	}

	c.JSON(http.StatusOK, success("User deleted"))
}

// CreateLicense handles POST /api/v1/admin/create-license.
func (h *AdminHandler) CreateLicense(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	result, err := h.service.CreateLicense(c.Request.Context(), usecase.CreateLicenseCommand{
		IDToken:      req.IDToken,
		Plan:         req.Plan,
		ValidityDays: req.ValidityDays,
	})
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to create license")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, LicenseResponse{
		SuccessResponse: success("License created"),
		LicenseID:       result.LicenseID,
		LicenseKey:      result.Key,
		Plan:            string(result.Plan),
		ValidityDays:    result.ValidityDays,
		IssuedAt:        result.IssuedAt,
		ExpiresAt:       result.ExpiresAt,
	})
}

// SetAdmin handles POST /api/v1/admin/set-admin.
func (h *AdminHandler) SetAdmin(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req SetAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c, err)
		return
	}

	err := h.service.SetAdmin(c.Request.Context(), usecase.SetAdminCommand{
		IDToken: req.IDToken,
		UserID:  req.UserID,
		Grant:   req.Grant,
		Reason:  req.Reason,
	})
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to update admin flag")
		return
	}

	isAdmin := req.Grant != nil && *req.Grant
	message := "Admin access revoked"
	if isAdmin {
		message = "Admin access granted"
	}
	c.JSON(http.StatusOK, SetAdminResponse{
		SuccessResponse: success(message),
		UserID:          strings.TrimSpace(req.UserID),
		IsAdmin:         isAdmin,
	})
}
