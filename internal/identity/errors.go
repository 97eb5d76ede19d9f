package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrUnauthorized    = errors.New("identity: unauthorized")
	ErrProfileNotFound = errors.New("identity: profile not found")
	ErrProfileRejected = errors.New("identity: profile request rejected")
)

// StatusError describes a failed call to the identity service.
type StatusError struct {
	Operation  string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "identity "+e.Operation+" failed")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *StatusError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed identity call may succeed on a later run.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
