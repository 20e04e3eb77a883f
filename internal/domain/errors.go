package domain

import "fmt"

// ValidationError reports a request rejected before any mutation: a missing
// reason, a malformed data-entry payload, or a status that does not permit
// the requested operation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports an actor that is not allowed to perform the
// requested operation: an organization mismatch, a missing permission, or a
// batch assigned to someone else.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// NewAuthorizationError builds an AuthorizationError from a format string.
func NewAuthorizationError(format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown batch, record, template, or user.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// NewNotFoundError builds a NotFoundError for the given resource and key.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// AuditWriteError reports a failed audit-event append. The business mutation
// the event describes is never rolled back; callers either surface this error
// (primary events) or log and swallow it (best-effort events).
type AuditWriteError struct {
	EventType EventType
	Err       error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("failed to append %s audit event: %v", e.EventType, e.Err)
}

func (e *AuditWriteError) Unwrap() error { return e.Err }
