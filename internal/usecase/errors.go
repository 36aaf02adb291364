package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorRecipientNotFound   ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrorAmbiguousRecipient  ErrorCode = "AMBIGUOUS_RECIPIENT"
	ErrorTransientDelivery   ErrorCode = "TRANSIENT_DELIVERY"
	ErrorPermanentDelivery   ErrorCode = "PERMANENT_DELIVERY"
	ErrorReconciliationWrite ErrorCode = "RECONCILIATION_WRITE_FAILURE"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}

// isResolutionFailure reports whether err means the recipient could not be
// identified, as opposed to the store being unavailable.
func isResolutionFailure(err error) bool {
	switch CodeOf(err) {
	case ErrorRecipientNotFound, ErrorAmbiguousRecipient:
		return true
	}
	return false
}
