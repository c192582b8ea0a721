package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure so transports can map it to a status.
type Kind string

const (
	KindInternal               Kind = "INTERNAL"
	KindAuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
	KindAuthorizationDenied    Kind = "AUTHORIZATION_DENIED"
	KindNotFound               Kind = "NOT_FOUND"
	KindValidationFailed       Kind = "VALIDATION_FAILED"
	KindConflict               Kind = "CONFLICT"
	KindQuotaExceeded          Kind = "QUOTA_EXCEEDED"
	KindExternalServiceFailure Kind = "EXTERNAL_SERVICE_FAILURE"
	KindDataIntegrityFailure   Kind = "DATA_INTEGRITY_FAILURE"
)

// Error is a failure with a stable kind and a message safe to show callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}
	return KindInternal
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
