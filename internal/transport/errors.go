package transport

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes snapshot and command failures.
type ErrorCode string

const (
	// ErrCodeTransportFailure covers rejected requests and non-2xx statuses.
	ErrCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"

	// ErrCodeMalformedSnapshot covers bodies that do not decode or lack
	// required fields.
	ErrCodeMalformedSnapshot ErrorCode = "MALFORMED_SNAPSHOT"
)

// Error is returned by every Client call that fails.
type Error struct {
	Code    ErrorCode
	Message string

	// Status is the HTTP status code, or 0 when no response arrived.
	Status int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportFailure reports whether err is a TRANSPORT_FAILURE.
func IsTransportFailure(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == ErrCodeTransportFailure
	}
	return false
}

// IsMalformedSnapshot reports whether err is a MALFORMED_SNAPSHOT.
func IsMalformedSnapshot(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == ErrCodeMalformedSnapshot
	}
	return false
}

func transportFailure(message string, status int, err error) *Error {
	return &Error{Code: ErrCodeTransportFailure, Message: message, Status: status, Err: err}
}

func malformed(message string, err error) *Error {
	return &Error{Code: ErrCodeMalformedSnapshot, Message: message, Err: err}
}
