package authguard

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jobtrail/authguard/clock"
	"github.com/jobtrail/authguard/instrumentation"
	"github.com/jobtrail/authguard/ratelimit"
	"github.com/jobtrail/authguard/scheduler"
	"github.com/jobtrail/authguard/security"
	"github.com/jobtrail/authguard/storage"
)

// Config holds the Guard configuration.
// Structured using composition: each service keeps its own config type.
type Config struct {
	// RateLimitStore persists fixed-window counters (required).
	RateLimitStore storage.RateLimitStore

	// JobStore persists scheduled jobs (required).
	JobStore storage.JobStore

	// Executor performs dispatched job work (required).
	Executor scheduler.Executor

	// Clock is the time source. Default: the system clock.
	Clock clock.Clock

	// Logger for structured logging (optional, uses default if not provided).
	Logger *slog.Logger

	// Instrumentation enables OpenTelemetry metrics and tracing (optional).
	Instrumentation *instrumentation.Instrumentation

	// Login overrides the password-login limit. Zero: PasswordLoginPreset.
	Login ratelimit.Config

	// Signup overrides the signup limit. Zero: SignupPreset.
	Signup ratelimit.Config

	// OAuth overrides the OAuth-attempt limit. Zero: OAuthPreset.
	OAuth ratelimit.Config

	// Events bounds the security event recent-history window.
	Events security.StoreConfig

	// Anomaly tunes the suspicious-activity heuristics.
	Anomaly security.AnomalyConfig

	// Scheduler configures the tick loop and dispatch policy.
	Scheduler scheduler.Config

	// SignupJobs configures the notification jobs queued at sign-up.
	SignupJobs SignupJobsConfig

	// DisableAudit turns off security audit logging.
	DisableAudit bool
}

// SignupJobsConfig describes the two jobs queued on first sign-in.
type SignupJobsConfig struct {
	// DigestDay is the weekday the weekly digest fires. Default: Sunday.
	DigestDay time.Weekday

	// DigestTime is the 24-hour "HH:MM" the digest fires. Default: "18:00".
	DigestTime string

	// ReminderDelay is how long after sign-up the one-shot follow-up
	// reminder fires. Default: 72 hours.
	ReminderDelay time.Duration
}

// Default sign-up job settings.
const (
	DefaultDigestTime    = "18:00"
	DefaultReminderDelay = 72 * time.Hour
)

func (c *SignupJobsConfig) applyDefaults() {
	// Sunday is already the Weekday zero value; only the time and delay
	// need filling in.
	if c.DigestTime == "" {
		c.DigestTime = DefaultDigestTime
	}
	if c.ReminderDelay <= 0 {
		c.ReminderDelay = DefaultReminderDelay
	}
}

func (c *Config) validate() error {
	if c.RateLimitStore == nil {
		return fmt.Errorf("RateLimitStore is required")
	}
	if c.JobStore == nil {
		return fmt.Errorf("JobStore is required")
	}
	if c.Executor == nil {
		return fmt.Errorf("Executor is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Login == (ratelimit.Config{}) {
		c.Login = ratelimit.PasswordLoginPreset
	}
	if c.Signup == (ratelimit.Config{}) {
		c.Signup = ratelimit.SignupPreset
	}
	if c.OAuth == (ratelimit.Config{}) {
		c.OAuth = ratelimit.OAuthPreset
	}
	c.SignupJobs.applyDefaults()
}
