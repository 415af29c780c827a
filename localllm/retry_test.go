package localllm

import (
	"context"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 1, Jitter: false}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 30.0, Jitter: false}

	delays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, expected := range delays {
		if got := policy.Delay(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}

	// Attempt 10 would be 1024s without the cap.
	if got := policy.Delay(10); got != 30*time.Second {
		t.Errorf("expected capped delay 30s, got %v", got)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &UnavailableError{ClientError: ClientError{Message: "down"}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("expected success on call 3, got %q after %d calls", result, calls)
	}
}

func TestRetryNeverRetriesProtocolErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", &ProtocolError{ClientError{Message: "bad payload"}}
	})
	if calls != 1 {
		t.Errorf("protocol error retried %d times; must fail immediately", calls-1)
	}
	if Category(err) != "BackendProtocolError" {
		t.Errorf("expected original error back, got %v", err)
	}
}

func TestRetryExhaustion(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", &TimeoutError{ClientError{Message: "slow"}}
	})
	if calls != 3 {
		t.Errorf("expected initial call + 2 retries, got %d calls", calls)
	}
	if Category(err) != "Timeout" {
		t.Errorf("expected last error back, got %v", err)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := fastPolicy(3)
	policy.BaseDelay = 10 // long enough that the select sees cancellation first
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return "", &UnavailableError{ClientError: ClientError{Message: "down"}}
	})
	if Category(err) != "Cancelled" {
		t.Errorf("expected Cancelled while backing off, got %v", err)
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	_, _ = Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		return "", &UnavailableError{ClientError: ClientError{Message: "down"}}
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected OnRetry for attempts [1 2], got %v", attempts)
	}
}
