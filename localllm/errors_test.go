package localllm

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"unavailable", &UnavailableError{ClientError: ClientError{Message: "down"}}, true},
		{"timeout", &TimeoutError{ClientError{Message: "slow"}}, true},
		{"protocol", &ProtocolError{ClientError{Message: "bad payload"}}, false},
		{"cancelled", &CancelledError{ClientError{Message: "stop"}}, false},
		{"plain", errors.New("something"), false},
		{"wrapped unavailable", fmt.Errorf("outer: %w", &UnavailableError{ClientError: ClientError{Message: "down"}}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&UnavailableError{ClientError: ClientError{Message: "x"}}, "BackendUnavailable"},
		{&ProtocolError{ClientError{Message: "x"}}, "BackendProtocolError"},
		{&TimeoutError{ClientError{Message: "x"}}, "Timeout"},
		{&CancelledError{ClientError{Message: "x"}}, "Cancelled"},
		{errors.New("x"), "Error"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := Category(tc.err); got != tc.want {
			t.Errorf("Category(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &UnavailableError{ClientError: ClientError{Message: "generate request", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}
