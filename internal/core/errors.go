package core

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap exactly one of these.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrTransport   = errors.New("transport failure")
	ErrPersistence = errors.New("persistence failure")
	ErrForbidden   = errors.New("forbidden")
)

var (
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrSelfConversation     = fmt.Errorf("%w: you cannot message yourself", ErrValidation)
	ErrEmptyMessage         = fmt.Errorf("%w: message text or image is required", ErrValidation)
	ErrInvalidMessage       = fmt.Errorf("%w: invalid message", ErrValidation)
	ErrNotParticipant       = fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	ErrSessionOverflow      = fmt.Errorf("%w: session buffer full", ErrTransport)
)

// Wire error codes.
const (
	ErrCodeUserNotFound         = "user_not_found"
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeSelfConversation     = "self_conversation"
	ErrCodeEmptyMessage         = "empty_message"
	ErrCodeInvalidMessage       = "invalid_message"
	ErrCodeNotParticipant       = "not_participant"
	ErrCodePersistence          = "persistence_error"
	ErrCodeBadRequest           = "bad_request"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeInternal             = "internal"
)

// Persistence marks err as a store failure. The cause stays reachable
// through errors.Is/As.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// CodeOf maps err onto a stable wire code.
func CodeOf(err error) string {
	var ce *CoreError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrUserNotFound):
		return ErrCodeUserNotFound
	case errors.Is(err, ErrConversationNotFound):
		return ErrCodeConversationNotFound
	case errors.Is(err, ErrSelfConversation):
		return ErrCodeSelfConversation
	case errors.Is(err, ErrEmptyMessage):
		return ErrCodeEmptyMessage
	case errors.Is(err, ErrNotParticipant):
		return ErrCodeNotParticipant
	case errors.Is(err, ErrPersistence):
		return ErrCodePersistence
	case errors.Is(err, ErrValidation):
		return ErrCodeInvalidMessage
	default:
		return ErrCodeInternal
	}
}

// ToCoreError converts any error into its wire representation. Internal
// failures get a generic message.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	code := CodeOf(err)
	switch code {
	case ErrCodeInternal:
		return coreError(code, "internal server error")
	case ErrCodePersistence:
		return coreError(code, "could not save, please retry")
	default:
		return coreError(code, err.Error())
	}
}

// BadRequest builds a bad_request error for malformed client input.
func BadRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// RateLimited builds the error returned when a session exceeds its send budget.
func RateLimited() *CoreError {
	return coreError(ErrCodeRateLimited, "too many messages, slow down")
}
