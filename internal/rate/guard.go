package rate

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// LimitError is returned when a call is blocked locally.
type LimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e LimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Guard enforces a provider's request budget: a local token bucket when the
// provider is silent, the provider's own remaining-budget headers when it
// speaks, and a cooldown after Retry-After.
type Guard struct {
	decl Declaration

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	remaining  int
	hasHeaders bool
	cooldown   time.Time
}

func newGuard(decl Declaration) *Guard {
	return &Guard{
		decl:       decl,
		tokens:     float64(decl.PerMinute()),
		lastRefill: time.Now(),
	}
}

// WrapHTTP wraps an http.Client with budget enforcement for one provider.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: newGuard(decl)}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.guard.Allow(time.Now()); err != nil {
		blockedTotal.WithLabelValues(rt.guard.decl.ProviderName()).Inc()
		return nil, err
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// Allow consumes one request from the budget or explains why it cannot.
func (g *Guard) Allow(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return LimitError{Provider: g.decl.ProviderName(), Reason: "cooldown", RetryAt: g.cooldown}
	}

	if g.hasHeaders {
		if g.remaining <= g.decl.Floor() {
			return LimitError{Provider: g.decl.ProviderName(), Reason: "budget exhausted", RetryAt: g.cooldown}
		}
		g.remaining--
		return nil
	}

	if !g.decl.HasLimits() {
		return nil
	}

	limit := g.decl.PerMinute()
	elapsed := now.Sub(g.lastRefill).Seconds()
	refillRate := float64(limit) / 60.0
	g.tokens = min(float64(limit), g.tokens+elapsed*refillRate)
	g.lastRefill = now
	if g.tokens < 1 {
		retryAt := now.Add(time.Duration((1 - g.tokens) / refillRate * float64(time.Second)))
		return LimitError{Provider: g.decl.ProviderName(), Reason: "local budget", RetryAt: retryAt}
	}
	g.tokens--
	return nil
}

// RecordResponse folds the provider's rate headers into the budget.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lastStatus.WithLabelValues(g.decl.ProviderName()).Set(float64(status))

	cfg := g.decl.HeaderMap()
	if remaining := headerInt(headers, cfg.Remaining); remaining >= 0 {
		g.remaining = remaining
		g.hasHeaders = true
		remainingGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(remaining))
	}
	if retryAfter := headerInt(headers, cfg.RetryAfter); retryAfter > 0 {
		g.cooldown = time.Now().Add(time.Duration(retryAfter) * time.Second)
		retryAfterGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(retryAfter))
	} else if status == http.StatusTooManyRequests {
		// No Retry-After: back off for a minute anyway.
		g.cooldown = time.Now().Add(time.Minute)
	}
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	var out int
	if _, err := fmt.Sscanf(val, "%d", &out); err != nil {
		return -1
	}
	return out
}
