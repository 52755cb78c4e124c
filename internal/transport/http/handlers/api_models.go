package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the error field of ErrorResponse.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeValidationFailed   = "validation_failed"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeNotFound           = "not_found"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeInternal           = "internal_error"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   code,
		Message: message,
		TraceID: traceIDStr,
	}
}

// SuccessResponse is embedded in every successful payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func success(message string) SuccessResponse {
	return SuccessResponse{Success: true, Message: message}
}

// BanUserRequest is the body of POST /admin/ban-user.
type BanUserRequest struct {
	IDToken  string `json:"idToken"`
	UserID   string `json:"userId"`
	Reason   string `json:"reason"`
	Duration int    `json:"duration"`
}

// BanIPRequest is the body of POST /admin/ban-ip.
type BanIPRequest struct {
	IDToken  string `json:"idToken"`
	IP       string `json:"ip"`
	Reason   string `json:"reason"`
	Duration int    `json:"duration"`
}

// UnbanIPRequest is the body of POST /admin/unban-ip.
type UnbanIPRequest struct {
	IDToken string `json:"idToken"`
	IP      string `json:"ip"`
	Reason  string `json:"reason"`
}

// DeleteUserRequest is the body of POST /admin/delete-user.
type DeleteUserRequest struct {
	IDToken string `json:"idToken"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason"`
}

// CreateLicenseRequest is the body of POST /admin/create-license.
type CreateLicenseRequest struct {
	IDToken      string `json:"idToken"`
	Plan         string `json:"plan"`
	ValidityDays int    `json:"validityDays"`
}

// SetAdminRequest is the body of POST /admin/set-admin.
type SetAdminRequest struct {
	IDToken string `json:"idToken"`
	UserID  string `json:"userId"`
	Grant   *bool  `json:"grant"`
	Reason  string `json:"reason"`
}

// BanResponse is returned by the ban endpoints.
type BanResponse struct {
	SuccessResponse
	BanID     string    `json:"banId"`
	UserID    string    `json:"userId,omitempty"`
	IP        string    `json:"ip,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LicenseResponse is returned once by POST /admin/create-license. It is the only response carrying the key.
type LicenseResponse struct {
	SuccessResponse
	LicenseID    string    `json:"licenseId"`
	LicenseKey   string    `json:"licenseKey"`
	Plan         string    `json:"plan"`
	ValidityDays int       `json:"validityDays"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SetAdminResponse is returned by POST /admin/set-admin.
type SetAdminResponse struct {
	SuccessResponse
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
}

// CheckBanRequest is the body of POST /guard/check-ban.
type CheckBanRequest struct {
	IP string `json:"ip"`
}

// CheckUserBanRequest is the body of POST /guard/check-user-ban.
type CheckUserBanRequest struct {
	UserID string `json:"userId"`
}

// CheckIPLimitRequest is the body of POST /guard/check-ip-limit. MaxAccounts falls back to the configured default.
type CheckIPLimitRequest struct {
	IP          string `json:"ip"`
	MaxAccounts *int   `json:"maxAccounts"`
}

// RecordIPRequest is the body of POST /guard/record-ip.
type RecordIPRequest struct {
	UserID string  `json:"userId"`
	IP     string  `json:"ip"`
	Email  *string `json:"email"`
}

// BanStatusResponse is returned by the ban check endpoints.
type BanStatusResponse struct {
	SuccessResponse
	Banned    bool       `json:"banned"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// IPLimitResponse is returned by POST /guard/check-ip-limit.
type IPLimitResponse struct {
	SuccessResponse
	Count         int  `json:"count"`
	MaxAccounts   int  `json:"maxAccounts"`
	LimitExceeded bool `json:"limitExceeded"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
