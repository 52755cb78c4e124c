package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/arklim/chat-moderation/internal/infra/validation"
	"github.com/arklim/chat-moderation/internal/usecase"
)

// unauthorizedMessage is shared by every authentication and authorization failure so callers cannot
// tell a rejected token from a non-admin subject.
const unauthorizedMessage = "Unauthorized"

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// moderationErrorCases apply to every operation built on the moderation use cases.
var moderationErrorCases = []ErrorCase{
	{Err: usecase.ErrValidationFailed, Status: http.StatusBadRequest, Code: ErrCodeValidationFailed, Message: "Invalid request"},
	{Err: usecase.ErrTokenInvalid, Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: unauthorizedMessage},
	{Err: usecase.ErrNotAdmin, Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: unauthorizedMessage},
	{Err: usecase.ErrTargetNotFound, Status: http.StatusBadRequest, Code: ErrCodeNotFound, Message: "Target not found"},
	{Err: usecase.ErrStoreUnavailable, Status: http.StatusInternalServerError, Code: ErrCodeServiceUnavailable, Message: "Service temporarily unavailable"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Validation failures carry their per-field messages.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			body := NewErrorResponse(c, cs.Code, cs.Message)
			var verr *validation.Error
			if errors.As(err, &verr) {
				body.Fields = verr.Messages()
				body.Message = verr.Error()
			}
			if cs.Status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			c.JSON(cs.Status, body)
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, ErrCodeInternal, fallbackMessage))
}

// respondInvalidPayload rejects a body that could not be decoded. A JSON value of the wrong type is
// reported against the field it was meant for.
func respondInvalidPayload(c *gin.Context, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		verr := &validation.Error{Fields: []validation.FieldError{{
			Field:   typeErr.Field,
			Rule:    "type",
			Message: fmt.Sprintf("must be a %s, got %s", jsonKind(typeErr.Type), typeErr.Value),
		}}}
		body := NewErrorResponse(c, ErrCodeValidationFailed, verr.Error())
		body.Fields = verr.Messages()
		c.JSON(http.StatusBadRequest, body)
		return
	}
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, ErrCodeInvalidRequest, "Request body must be a JSON object"))
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	default:
		return t.Kind().String()
	}
}
