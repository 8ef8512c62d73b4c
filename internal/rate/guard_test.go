package rate

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestGuardLocalBucket(t *testing.T) {
	g := newGuard(Provider("test").MaxRequestsPerMinute(2))
	now := time.Now()

	if err := g.Allow(now); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := g.Allow(now); err != nil {
		t.Fatalf("second call: %v", err)
	}

	err := g.Allow(now)
	var limitErr LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Reason != "local budget" {
		t.Fatalf("unexpected reason: %s", limitErr.Reason)
	}

	// The bucket refills with time.
	if err := g.Allow(now.Add(time.Minute)); err != nil {
		t.Fatalf("after refill: %v", err)
	}
}

func TestGuardHonorsProviderHeaders(t *testing.T) {
	g := newGuard(Provider("test").MaxRequestsPerMinute(100).BudgetFloor(1))

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "2")
	g.RecordResponse(http.StatusOK, headers)

	if err := g.Allow(time.Now()); err != nil {
		t.Fatalf("call above floor: %v", err)
	}

	// remaining is now at the floor; further calls are blocked.
	err := g.Allow(time.Now())
	var limitErr LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
}

func TestGuardCooldownOnRetryAfter(t *testing.T) {
	g := newGuard(Provider("test").MaxRequestsPerMinute(100))

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	g.RecordResponse(http.StatusTooManyRequests, headers)

	err := g.Allow(time.Now())
	var limitErr LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected cooldown LimitError, got %v", err)
	}
	if limitErr.Reason != "cooldown" {
		t.Fatalf("unexpected reason: %s", limitErr.Reason)
	}
	if limitErr.RetryAt.IsZero() {
		t.Fatalf("expected retry hint")
	}
}

func TestGuardNoLimitsAllowsAll(t *testing.T) {
	g := newGuard(Provider("test"))
	now := time.Now()
	for range 50 {
		if err := g.Allow(now); err != nil {
			t.Fatalf("unexpected block: %v", err)
		}
	}
}
