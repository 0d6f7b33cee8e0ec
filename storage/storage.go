// Package storage defines interfaces for persisting rate-limit windows and
// scheduled jobs. It supports various backend implementations including
// in-memory and Valkey.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job ID has no stored record.
var ErrJobNotFound = errors.New("job not found")

// RateLimitRecord is one fixed counting window for a single key.
// A record is created lazily on the first check for its key and overwritten,
// never merged, once its window expires.
type RateLimitRecord struct {
	Key         string
	WindowStart time.Time
	Count       int
	Limit       int
	Window      time.Duration
}

// ResetAt returns the instant the window ends and the count resets.
func (r RateLimitRecord) ResetAt() time.Time {
	return r.WindowStart.Add(r.Window)
}

// RateLimitStore persists fixed-window counters keyed by an opaque string.
// All methods accept context.Context for tracing and cancellation.
type RateLimitStore interface {
	// Incr applies the fixed-window check-and-increment for key: if no record
	// exists, or the stored window started at least `window` before now, a
	// fresh record with count=1 is written; otherwise the stored count is
	// incremented. The resulting record is returned.
	//
	// The read-decide-write sequence MUST be atomic per key: two concurrent
	// calls for the same key must never observe the same count.
	Incr(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (RateLimitRecord, error)

	// GetRateLimit retrieves the current record for a key, or nil if none exists.
	GetRateLimit(ctx context.Context, key string) (*RateLimitRecord, error)

	// DeleteRateLimit removes the record for a key.
	DeleteRateLimit(ctx context.Context, key string) error
}

// Interval is the recurrence cadence of a scheduled job.
type Interval string

// Recognized recurrence intervals.
const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// Recurrence describes when a recurring job fires: the listed weekdays at
// TimeOfDay, advanced per Interval. The next occurrence is deterministically
// derived from it.
type Recurrence struct {
	Interval   Interval
	DaysOfWeek []time.Weekday
	TimeOfDay  string // 24-hour "HH:MM"
}

// Job is a persisted one-shot or recurring unit of future work.
// Callers create jobs and may cancel them (Active=false); everything else is
// mutated only by the scheduler after dispatch.
type Job struct {
	ID           string
	Type         string
	Payload      map[string]string
	ScheduledFor time.Time
	Recurrence   *Recurrence
	Active       bool
	LastRunAt    *time.Time
	FailureCount int
	CreatedAt    time.Time
}

// JobStore persists scheduled jobs.
// All methods accept context.Context for tracing and cancellation.
type JobStore interface {
	// SaveJob inserts or overwrites a job by ID.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID. Returns ErrJobNotFound if absent.
	GetJob(ctx context.Context, id string) (*Job, error)

	// ListDueJobs returns all jobs with Active=true and ScheduledFor <= now.
	ListDueJobs(ctx context.Context, now time.Time) ([]*Job, error)

	// ListJobs returns all stored jobs (for admin and testing purposes).
	ListJobs(ctx context.Context) ([]*Job, error)

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, id string) error
}

// CloneJob returns a deep copy so stores never hand out aliased state.
func CloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	out := *job
	if job.Payload != nil {
		out.Payload = make(map[string]string, len(job.Payload))
		for k, v := range job.Payload {
			out.Payload[k] = v
		}
	}
	if job.Recurrence != nil {
		rec := *job.Recurrence
		rec.DaysOfWeek = append([]time.Weekday(nil), job.Recurrence.DaysOfWeek...)
		out.Recurrence = &rec
	}
	if job.LastRunAt != nil {
		t := *job.LastRunAt
		out.LastRunAt = &t
	}
	return &out
}
