package localllm

import (
	"context"
	"errors"
	"fmt"
)

// ClientError is the base error type for all backend client errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// UnavailableError means the backend could not be reached or answered
// with a server-side failure status.
type UnavailableError struct {
	ClientError
	StatusCode int
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend unavailable (status=%d): %s", e.StatusCode, e.ClientError.Error())
	}
	return "backend unavailable: " + e.ClientError.Error()
}

// ProtocolError means the backend answered but its payload did not
// conform to the wire contract.
type ProtocolError struct {
	ClientError
}

func (e *ProtocolError) Error() string {
	return "backend protocol error: " + e.ClientError.Error()
}

// TimeoutError means the exchange exceeded its deadline.
type TimeoutError struct {
	ClientError
}

func (e *TimeoutError) Error() string {
	return "backend timeout: " + e.ClientError.Error()
}

// CancelledError means the exchange was cancelled by the caller.
type CancelledError struct {
	ClientError
}

func (e *CancelledError) Error() string {
	return "cancelled: " + e.ClientError.Error()
}

// wrapTransportError classifies a transport-level failure, folding in the
// context state so deadline and cancellation surface as their own types.
func wrapTransportError(ctx context.Context, msg string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{ClientError{Message: msg, Cause: err}}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &CancelledError{ClientError{Message: msg, Cause: err}}
	default:
		return &UnavailableError{ClientError: ClientError{Message: msg, Cause: err}}
	}
}

// IsRetryable reports whether a caller-side retry wrapper may reasonably
// reissue the request. Only transient transport conditions qualify;
// protocol violations and cancellations never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// Category returns the short taxonomy name for a client error, used by
// callers mapping failures to exit codes and user-facing labels.
func Category(err error) string {
	if err == nil {
		return ""
	}
	var (
		unavailable *UnavailableError
		protocol    *ProtocolError
		timeout     *TimeoutError
		cancelled   *CancelledError
	)
	switch {
	case errors.As(err, &unavailable):
		return "BackendUnavailable"
	case errors.As(err, &protocol):
		return "BackendProtocolError"
	case errors.As(err, &timeout):
		return "Timeout"
	case errors.As(err, &cancelled):
		return "Cancelled"
	default:
		return "Error"
	}
}
