package usecase

import (
	"errors"
	"fmt"

	"github.com/arklim/chat-moderation/internal/infra/validation"
)

var (
	// ErrValidationFailed indicates malformed or out-of-range input. It is raised before any store access.
	ErrValidationFailed = errors.New("validation failed")
	// ErrTokenInvalid indicates the identity provider rejected or could not parse the token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrNotAdmin indicates the privilege gate refused the caller.
	ErrNotAdmin = errors.New("not admin")
	// ErrTargetNotFound indicates the referenced subject or ban does not exist.
	ErrTargetNotFound = errors.New("target not found")
	// ErrStoreUnavailable indicates a transient persistence failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

func validationFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrValidationFailed, err)
}

func fieldViolation(field, rule, message string) error {
	return validationFailed(&validation.Error{Fields: []validation.FieldError{{
		Field:   field,
		Rule:    rule,
		Message: message,
	}}})
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
