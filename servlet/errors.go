package servlet

import (
	"fmt"
	"time"
)

// ServletError is the general failure kind an implementation module returns
// from any lifecycle callable.
type ServletError struct {
	Message string
	Err     error
}

func (e *ServletError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServletError) Unwrap() error {
	return e.Err
}

// Errorf creates a ServletError with a formatted message.
func Errorf(format string, args ...any) *ServletError {
	return &ServletError{Message: fmt.Sprintf(format, args...)}
}

// UnavailableError signals that a servlet cannot serve, either permanently
// (RetryAfter == 0) or for the given duration.
//
// A container that receives it from Init refuses to start the servlet.
// Received from Service, it is answered with 503.
type UnavailableError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("servlet unavailable for %s: %s", e.RetryAfter, e.Message)
	}
	return "servlet unavailable: " + e.Message
}

// Permanent reports whether the servlet will never become available again.
func (e *UnavailableError) Permanent() bool {
	return e.RetryAfter <= 0
}
