// Package scheduler provides a durable queue of one-shot and recurring future
// jobs with an independent background tick loop that dispatches due jobs to
// an external executor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jobtrail/authguard/clock"
	"github.com/jobtrail/authguard/instrumentation"
	"github.com/jobtrail/authguard/security"
	"github.com/jobtrail/authguard/storage"
)

// Well-known job types queued by the sign-up flow. The type set is open:
// executors may accept any string.
const (
	JobTypeWeeklyDigest  = "weekly_digest"
	JobTypeEmailReminder = "email_reminder"
)

const (
	// DefaultTickInterval is how often due jobs are evaluated.
	DefaultTickInterval = time.Minute

	// DefaultMaxDispatchRetries is the number of failed dispatches after
	// which a job is deactivated and reported as failed.
	DefaultMaxDispatchRetries = 5

	// DefaultMaxConcurrentDispatches bounds in-flight dispatches per tick so
	// one slow executor call cannot starve other due jobs.
	DefaultMaxConcurrentDispatches = 4

	// DefaultDispatchesPerSecond paces executor calls within a tick.
	DefaultDispatchesPerSecond = 10

	// DefaultDrainTimeout is how long Stop waits for in-flight dispatches.
	DefaultDrainTimeout = 10 * time.Second
)

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is the evaluation period. Default: 1 minute.
	TickInterval time.Duration

	// MaxDispatchRetries deactivates a job after this many consecutive
	// failed dispatches. Default: 5.
	MaxDispatchRetries int

	// MaxConcurrentDispatches bounds in-flight executor calls. Default: 4.
	MaxConcurrentDispatches int

	// DispatchesPerSecond paces executor calls. Default: 10.
	DispatchesPerSecond int

	// DrainTimeout is how long Stop waits for in-flight dispatches before
	// giving up. Default: 10 seconds.
	DrainTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.MaxDispatchRetries <= 0 {
		c.MaxDispatchRetries = DefaultMaxDispatchRetries
	}
	if c.MaxConcurrentDispatches <= 0 {
		c.MaxConcurrentDispatches = DefaultMaxConcurrentDispatches
	}
	if c.DispatchesPerSecond <= 0 {
		c.DispatchesPerSecond = DefaultDispatchesPerSecond
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// JobSpec is the caller-facing description of a job to schedule.
type JobSpec struct {
	// Type names the work for the executor. Required.
	Type string

	// Payload is handed to the executor verbatim.
	Payload map[string]string

	// ScheduledFor is when the job is first due. It may be in the past, in
	// which case the job is due on the next tick.
	ScheduledFor time.Time

	// Recurrence, when present, makes the job recurring. Validated at
	// schedule time.
	Recurrence *storage.Recurrence
}

// Scheduler owns the job queue and its tick loop. Scheduling is synchronous
// and fast; dispatch is the only operation that calls out to slower external
// systems, and it runs off the tick goroutine.
type Scheduler struct {
	store   storage.JobStore
	exec    Executor
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
	auditor *security.Auditor
	inst    *instrumentation.Instrumentation

	pace *rate.Limiter

	mu       sync.Mutex
	inFlight map[string]struct{} // job IDs currently dispatching

	wg        sync.WaitGroup
	stopLoop  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a scheduler. clk and logger may be nil; defaults are applied.
// The tick loop does not run until Start is called.
func New(store storage.JobStore, exec Executor, clk clock.Clock, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		exec:     exec,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
		pace:     rate.NewLimiter(rate.Limit(cfg.DispatchesPerSecond), cfg.MaxConcurrentDispatches),
		inFlight: make(map[string]struct{}),
		stopLoop: make(chan struct{}),
	}
}

// SetAuditor attaches an auditor for dispatch-failure reporting.
func (s *Scheduler) SetAuditor(auditor *security.Auditor) {
	s.auditor = auditor
}

// SetInstrumentation attaches optional OpenTelemetry instrumentation.
func (s *Scheduler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
}

// Schedule validates spec, persists a new job with a fresh ID, and returns
// it. ScheduledFor may already be due; the job fires on the next tick.
func (s *Scheduler) Schedule(ctx context.Context, spec JobSpec) (*storage.Job, error) {
	if spec.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidJobSpec)
	}
	if spec.ScheduledFor.IsZero() {
		return nil, fmt.Errorf("%w: scheduledFor is required", ErrInvalidJobSpec)
	}
	if err := ValidateRecurrence(spec.Recurrence); err != nil {
		return nil, err
	}

	job := &storage.Job{
		ID:           uuid.NewString(),
		Type:         spec.Type,
		Payload:      spec.Payload,
		ScheduledFor: spec.ScheduledFor,
		Recurrence:   spec.Recurrence,
		Active:       true,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if s.inst != nil {
		s.inst.Metrics().JobsScheduled.Add(ctx, 1)
	}
	s.logger.Debug("Job scheduled",
		"job_id", job.ID,
		"job_type", job.Type,
		"scheduled_for", job.ScheduledFor,
		"recurring", job.Recurrence != nil)

	return storage.CloneJob(job), nil
}

// Cancel deactivates a job. It takes effect on the next tick check; a
// dispatch already in flight for the job completes.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	job.Active = false
	return s.store.SaveJob(ctx, job)
}

// Start launches the background tick loop. Subsequent calls are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.tickLoop()
	})
}

// Stop stops the tick loop and waits up to DrainTimeout for in-flight
// dispatches to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopLoop)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(s.cfg.DrainTimeout):
			s.logger.Warn("Scheduler drain timeout, abandoning in-flight dispatches",
				"timeout", s.cfg.DrainTimeout)
		}
	})
}

func (s *Scheduler) tickLoop() {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-s.stopLoop:
			return
		}
	}
}

// Tick evaluates due jobs once: every active job with ScheduledFor at or
// before the injected clock's now is dispatched. Exported so embedders and
// tests can drive evaluation deterministically with virtual time.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	if s.inst != nil {
		s.inst.Metrics().SchedulerTicksTotal.Add(ctx, 1)
	}

	due, err := s.store.ListDueJobs(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due jobs", "error", err)
		return
	}

	for _, job := range due {
		// A job whose last run already covers the occurrence it was due for
		// has been dispatched but not yet rescheduled; never dispatch the
		// same occurrence twice.
		if job.LastRunAt != nil && !job.LastRunAt.Before(job.ScheduledFor) {
			continue
		}

		if !s.markInFlight(job.ID) {
			continue
		}

		// The listing is a snapshot; a dispatch can complete and clear its
		// in-flight entry between the snapshot and this point. Re-read the
		// job under the in-flight guard so a stale row never dispatches the
		// same occurrence again.
		fresh, err := s.store.GetJob(ctx, job.ID)
		if err != nil {
			s.clearInFlight(job.ID)
			if !errors.Is(err, storage.ErrJobNotFound) {
				s.logger.Error("Failed to re-read due job", "job_id", job.ID, "error", err)
			}
			continue
		}
		if !fresh.Active || fresh.ScheduledFor.After(now) ||
			(fresh.LastRunAt != nil && !fresh.LastRunAt.Before(fresh.ScheduledFor)) {
			s.clearInFlight(job.ID)
			continue
		}

		if err := s.pace.Wait(ctx); err != nil {
			s.clearInFlight(job.ID)
			return
		}

		s.wg.Add(1)
		go func(job *storage.Job) {
			defer s.wg.Done()
			defer s.clearInFlight(job.ID)
			s.dispatch(ctx, job)
		}(fresh)
	}
}

// markInFlight records a dispatch in progress. Returns false if the job is
// already being dispatched.
func (s *Scheduler) markInFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inFlight[id]; exists {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) clearInFlight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// dispatch runs one executor call and applies the post-dispatch transition.
// A panic in the executor is contained here so one job cannot take down the
// tick loop or its siblings.
func (s *Scheduler) dispatch(ctx context.Context, job *storage.Job) {
	start := time.Now()
	err := s.execute(ctx, job)
	durationMs := float64(time.Since(start)) / float64(time.Millisecond)

	if s.inst != nil {
		s.inst.Metrics().RecordDispatch(ctx, job.Type, err == nil, durationMs)
	}

	if err != nil {
		s.handleDispatchFailure(ctx, job, err)
		return
	}

	now := s.clock.Now()
	job.LastRunAt = &now
	job.FailureCount = 0

	if job.Recurrence == nil {
		// One-shot: completed.
		job.Active = false
	} else {
		next, err := NextOccurrence(job.Recurrence, now)
		if err != nil {
			// Unreachable for a validated job; deactivate rather than
			// re-dispatch the same occurrence forever.
			s.logger.Error("Failed to compute next occurrence, deactivating job",
				"job_id", job.ID, "error", err)
			job.Active = false
		} else {
			// Advancing from now, not from the old ScheduledFor: a job that
			// was overdue past several occurrences fires once and moves on,
			// never burst-dispatching the backlog.
			job.ScheduledFor = next
		}
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.Error("Failed to persist job after dispatch", "job_id", job.ID, "error", err)
		return
	}

	s.logger.Debug("Job dispatched",
		"job_id", job.ID,
		"job_type", job.Type,
		"recurring", job.Recurrence != nil,
		"next_run", job.ScheduledFor)
}

func (s *Scheduler) execute(ctx context.Context, job *storage.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return s.exec.Execute(ctx, job.Type, job.Payload)
}

// handleDispatchFailure leaves ScheduledFor unchanged so the job retries on
// the next tick, up to MaxDispatchRetries, beyond which it is deactivated
// and reported as failed.
func (s *Scheduler) handleDispatchFailure(ctx context.Context, job *storage.Job, dispatchErr error) {
	job.FailureCount++
	deactivated := job.FailureCount >= s.cfg.MaxDispatchRetries
	if deactivated {
		job.Active = false
		if s.inst != nil {
			s.inst.Metrics().JobsDeactivated.Add(ctx, 1)
		}
	}

	s.logger.Warn("Job dispatch failed",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.FailureCount,
		"deactivated", deactivated,
		"error", dispatchErr)
	if s.auditor != nil {
		s.auditor.LogJobDispatchFailed(job.ID, job.Type, job.FailureCount, deactivated)
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.Error("Failed to persist job after dispatch failure", "job_id", job.ID, "error", err)
	}
}
