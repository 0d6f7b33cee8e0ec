package authguard

import (
	"context"
	"log/slog"

	"github.com/jobtrail/authguard/clock"
	"github.com/jobtrail/authguard/ratelimit"
	"github.com/jobtrail/authguard/scheduler"
	"github.com/jobtrail/authguard/security"
)

// Guard composes the rate limiter, security event store, anomaly detector,
// and job scheduler behind the handful of calls the authentication flow
// makes. Every Guard method is safe on the request path: rate-limit denial
// is returned as data, and every other failure is logged and swallowed.
type Guard struct {
	limiter   *ratelimit.Limiter
	events    *security.EventStore
	detector  *security.Detector
	auditor   *security.Auditor
	scheduler *scheduler.Scheduler

	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Guard from cfg. The scheduler tick loop does not run until
// Start is called.
func New(cfg Config) (*Guard, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	auditor := security.NewAuditor(cfg.Logger, !cfg.DisableAudit)
	auditor.SetClock(cfg.Clock)

	limiter := ratelimit.New(cfg.RateLimitStore, cfg.Clock, cfg.Logger)
	events := security.NewEventStore(cfg.Events, cfg.Clock, cfg.Logger, auditor)
	detector := security.NewDetector(events, cfg.Anomaly)
	sched := scheduler.New(cfg.JobStore, cfg.Executor, cfg.Clock, cfg.Scheduler, cfg.Logger)
	sched.SetAuditor(auditor)

	if cfg.Instrumentation != nil {
		limiter.SetInstrumentation(cfg.Instrumentation)
		events.SetInstrumentation(cfg.Instrumentation)
		detector.SetInstrumentation(cfg.Instrumentation)
		sched.SetInstrumentation(cfg.Instrumentation)
	}

	return &Guard{
		limiter:   limiter,
		events:    events,
		detector:  detector,
		auditor:   auditor,
		scheduler: sched,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}, nil
}

// Start launches the scheduler tick loop.
func (g *Guard) Start() {
	g.scheduler.Start()
}

// Stop stops the tick loop, letting in-flight dispatches finish within the
// configured drain timeout.
func (g *Guard) Stop() {
	g.scheduler.Stop()
}

// Scheduler exposes the underlying scheduler for callers that manage jobs
// directly (cancellation, custom job types).
func (g *Guard) Scheduler() *scheduler.Scheduler {
	return g.scheduler
}

// ============================================================
// Rate limiting
// ============================================================

// CheckLogin applies the password-login limit for an email.
func (g *Guard) CheckLogin(ctx context.Context, email string) ratelimit.Result {
	return g.check(ctx, ratelimit.LoginKey(email), g.cfg.Login)
}

// CheckSignup applies the signup limit for an email.
func (g *Guard) CheckSignup(ctx context.Context, email string) ratelimit.Result {
	return g.check(ctx, ratelimit.SignupKey(email), g.cfg.Signup)
}

// CheckOAuth applies the shared OAuth-attempt limit for a provider and host.
func (g *Guard) CheckOAuth(ctx context.Context, provider, host string) ratelimit.Result {
	return g.check(ctx, ratelimit.OAuthKey(provider, host), g.cfg.OAuth)
}

func (g *Guard) check(ctx context.Context, key string, cfg ratelimit.Config) ratelimit.Result {
	result := g.limiter.Check(ctx, key, cfg)
	if !result.Allowed {
		g.auditor.LogRateLimitExceeded(ratelimit.KeyScope(key), result.WaitMinutes(g.clock.Now()))
	}
	return result
}

// ============================================================
// Security events
// ============================================================

// RecordLoginAttempt logs a credentialed action being attempted.
func (g *Guard) RecordLoginAttempt(ctx context.Context, userID string, metadata map[string]string) {
	g.events.Log(ctx, security.Event{
		Type:     security.EventLoginAttempt,
		UserID:   userID,
		Metadata: metadata,
	})
}

// RecordLoginFailure logs a failed sign-in.
func (g *Guard) RecordLoginFailure(ctx context.Context, userID string, metadata map[string]string) {
	g.events.Log(ctx, security.Event{
		Type:     security.EventLoginFailure,
		UserID:   userID,
		Metadata: metadata,
	})
}

// RecordLoginSuccess logs a successful sign-in and evaluates the anomaly
// heuristics over the user's recent history. The returned assessment is
// surfaced to the user verbatim when suspicious.
func (g *Guard) RecordLoginSuccess(ctx context.Context, userID string, metadata map[string]string) security.Assessment {
	g.events.Log(ctx, security.Event{
		Type:     security.EventLoginSuccess,
		UserID:   userID,
		Success:  true,
		Metadata: metadata,
	})

	assessment := g.detector.CheckSuspiciousActivity(ctx, userID)
	if assessment.Suspicious {
		g.auditor.LogSuspiciousActivity(userID, assessment.Reason)
	}
	return assessment
}

// ============================================================
// Sign-up jobs
// ============================================================

// OnSignup queues the notification work for a new account: a recurring
// weekly digest and a one-shot follow-up reminder. Scheduling failures are
// logged and swallowed so they can never fail the sign-up itself.
func (g *Guard) OnSignup(ctx context.Context, userID, email string) {
	now := g.clock.Now()
	payload := map[string]string{
		"user_id": userID,
		"email":   email,
	}

	digestRec := scheduler.WeeklyRecurrence(g.cfg.SignupJobs.DigestDay, g.cfg.SignupJobs.DigestTime)
	firstDigest, err := scheduler.NextOccurrence(digestRec, now)
	if err != nil {
		g.logger.Error("Failed to compute digest schedule", "error", err)
	} else {
		g.scheduleSignupJob(ctx, userID, scheduler.JobSpec{
			Type:         scheduler.JobTypeWeeklyDigest,
			Payload:      payload,
			ScheduledFor: firstDigest,
			Recurrence:   digestRec,
		})
	}

	g.scheduleSignupJob(ctx, userID, scheduler.JobSpec{
		Type:         scheduler.JobTypeEmailReminder,
		Payload:      payload,
		ScheduledFor: now.Add(g.cfg.SignupJobs.ReminderDelay),
	})
}

func (g *Guard) scheduleSignupJob(ctx context.Context, userID string, spec scheduler.JobSpec) {
	job, err := g.scheduler.Schedule(ctx, spec)
	if err != nil {
		g.logger.Error("Failed to schedule sign-up job",
			"job_type", spec.Type,
			"user_id_hash", security.HashForLogging(userID),
			"error", err)
		return
	}
	g.auditor.LogJobScheduled(userID, job.ID, job.Type)
}
