// Package ratelimit provides fixed-window rate limiting for authentication
// attempts, keyed by an opaque string identifier.
//
// The window is fixed, not sliding: counts reset abruptly at window
// boundaries, which keeps memory at O(1) per key but can admit up to twice
// the configured maximum across a boundary-straddling burst. Callers that
// need a hard cap should halve MaxRequests rather than assume sliding
// semantics.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobtrail/authguard/clock"
	"github.com/jobtrail/authguard/instrumentation"
	"github.com/jobtrail/authguard/storage"
)

// Config holds the window parameters for one class of checks.
type Config struct {
	// Window is the fixed counting window length.
	Window time.Duration

	// MaxRequests is the number of checks allowed per key per window.
	MaxRequests int
}

// Named presets selected by the authentication call sites.
var (
	// OAuthPreset is the shared default for OAuth attempts, keyed per
	// provider and host.
	OAuthPreset = Config{Window: time.Minute, MaxRequests: 10}

	// PasswordLoginPreset guards password sign-in, keyed per email.
	PasswordLoginPreset = Config{Window: 15 * time.Minute, MaxRequests: 5}

	// SignupPreset guards account creation, keyed per email.
	SignupPreset = Config{Window: time.Hour, MaxRequests: 3}
)

// Result is the outcome of a rate limit check. Denial is data, not an error:
// callers branch on Allowed.
type Result struct {
	// Allowed reports whether this check fell within the window limit.
	Allowed bool

	// Remaining is the number of checks left in the current window.
	Remaining int

	// ResetAt is when the current window ends and the count resets.
	ResetAt time.Time
}

// RetryAfter returns how long the caller must wait before the window resets.
// Returns zero if the window has already reset.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// WaitMinutes returns the wait before reset rounded up to whole minutes, for
// surfacing to users. The limiter itself never formats messages.
func (r Result) WaitMinutes(now time.Time) int {
	d := r.RetryAfter(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// Limiter answers whether an action keyed by an identifier is allowed right
// now. It never fails: a store error degrades to allow, because the limiter
// must never block the authentication flow.
type Limiter struct {
	store  storage.RateLimitStore
	clock  clock.Clock
	logger *slog.Logger
	inst   *instrumentation.Instrumentation
}

// New creates a rate limiter on top of the given store.
// clk and logger may be nil, in which case the system clock and the default
// logger are used.
func New(store storage.RateLimitStore, clk clock.Clock, logger *slog.Logger) *Limiter {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// SetInstrumentation attaches optional OpenTelemetry instrumentation.
func (l *Limiter) SetInstrumentation(inst *instrumentation.Instrumentation) {
	l.inst = inst
}

// Check applies the fixed-window count for key under cfg and reports whether
// the action is allowed. Absence of a prior record is treated as zero prior
// requests.
func (l *Limiter) Check(ctx context.Context, key string, cfg Config) Result {
	now := l.clock.Now()

	rec, err := l.store.Incr(ctx, key, cfg.Window, cfg.MaxRequests, now)
	if err != nil {
		// Fail open: an unavailable limiter must not lock users out.
		l.logger.Warn("Rate limit store failure, allowing request",
			"scope", KeyScope(key),
			"error", err)
		if l.inst != nil {
			l.inst.Metrics().RateLimitStoreFailures.Add(ctx, 1)
		}
		return Result{Allowed: true, Remaining: 0, ResetAt: now.Add(cfg.Window)}
	}

	allowed := rec.Count <= cfg.MaxRequests
	remaining := cfg.MaxRequests - rec.Count
	if remaining < 0 {
		remaining = 0
	}

	if l.inst != nil {
		l.inst.Metrics().RecordRateLimitCheck(ctx, KeyScope(key), allowed)
	}

	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   rec.ResetAt(),
	}
}

// Reset removes the window for a key, if any. Intended for admin tooling and
// tests; the normal path never deletes.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.DeleteRateLimit(ctx, key)
}
