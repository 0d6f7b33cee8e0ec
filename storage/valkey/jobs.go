package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/jobtrail/authguard/storage"
)

// ============================================================
// JobStore Implementation
// ============================================================

// jobJSON is the persisted shape of a scheduled job, matching the documented
// schema (id, type, payload, scheduled_for, recurring_*, active, last_run_at).
type jobJSON struct {
	ID                string            `json:"id"`
	Type              string            `json:"type"`
	Payload           map[string]string `json:"payload,omitempty"`
	ScheduledFor      int64             `json:"scheduled_for"` // Unix milliseconds
	RecurringInterval string            `json:"recurring_interval,omitempty"`
	RecurringDays     []int             `json:"recurring_days,omitempty"`
	RecurringTime     string            `json:"recurring_time,omitempty"`
	Active            bool              `json:"active"`
	LastRunAt         int64             `json:"last_run_at,omitempty"` // Unix milliseconds, 0 = never
	FailureCount      int               `json:"failure_count,omitempty"`
	CreatedAt         int64             `json:"created_at"` // Unix milliseconds
}

func toJobJSON(job *storage.Job) *jobJSON {
	out := &jobJSON{
		ID:           job.ID,
		Type:         job.Type,
		Payload:      job.Payload,
		ScheduledFor: job.ScheduledFor.UnixMilli(),
		Active:       job.Active,
		FailureCount: job.FailureCount,
		CreatedAt:    job.CreatedAt.UnixMilli(),
	}
	if job.Recurrence != nil {
		out.RecurringInterval = string(job.Recurrence.Interval)
		out.RecurringTime = job.Recurrence.TimeOfDay
		for _, d := range job.Recurrence.DaysOfWeek {
			out.RecurringDays = append(out.RecurringDays, int(d))
		}
	}
	if job.LastRunAt != nil {
		out.LastRunAt = job.LastRunAt.UnixMilli()
	}
	return out
}

func fromJobJSON(in *jobJSON) *storage.Job {
	job := &storage.Job{
		ID:           in.ID,
		Type:         in.Type,
		Payload:      in.Payload,
		ScheduledFor: time.UnixMilli(in.ScheduledFor),
		Active:       in.Active,
		FailureCount: in.FailureCount,
		CreatedAt:    time.UnixMilli(in.CreatedAt),
	}
	if in.RecurringInterval != "" {
		rec := &storage.Recurrence{
			Interval:  storage.Interval(in.RecurringInterval),
			TimeOfDay: in.RecurringTime,
		}
		for _, d := range in.RecurringDays {
			rec.DaysOfWeek = append(rec.DaysOfWeek, time.Weekday(d))
		}
		job.Recurrence = rec
	}
	if in.LastRunAt > 0 {
		t := time.UnixMilli(in.LastRunAt)
		job.LastRunAt = &t
	}
	return job
}

// SaveJob inserts or overwrites a job by ID and indexes it in the job set.
func (s *Store) SaveJob(ctx context.Context, job *storage.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("invalid job")
	}
	if err := validateKeyLength(job.ID, "job ID"); err != nil {
		return err
	}

	data, err := json.Marshal(toJobJSON(job))
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.jobKey(job.ID)).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(s.jobIndexKey()).Member(job.ID).Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to index job", "job_id", job.ID, "error", err)
	}

	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.jobKey(id)).Build())
	if err := resp.Error(); err != nil {
		if valkeyNil(err) {
			return nil, storage.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	data, err := resp.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var in jobJSON
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return fromJobJSON(&in), nil
}

// ListDueJobs returns all active jobs whose ScheduledFor is at or before now.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time) ([]*storage.Job, error) {
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	var due []*storage.Job
	for _, job := range jobs {
		if job.Active && !job.ScheduledFor.After(now) {
			due = append(due, job)
		}
	}
	return due, nil
}

// ListJobs returns all stored jobs. Index entries whose job record has been
// deleted out-of-band are dropped from the index as they are encountered.
func (s *Store) ListJobs(ctx context.Context) ([]*storage.Job, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.jobIndexKey()).Build()).AsStrSlice()
	if err != nil {
		if valkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list job index: %w", err)
	}

	jobs := make([]*storage.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if err == storage.ErrJobNotFound {
				s.client.Do(ctx, s.client.B().Srem().Key(s.jobIndexKey()).Member(id).Build())
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.jobKey(id)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.jobIndexKey()).Member(id).Build()).Error(); err != nil {
		s.logger.Warn("Failed to deindex job", "job_id", id, "error", err)
	}
	return nil
}

// valkeyNil reports whether err is the Valkey nil reply (key absent).
func valkeyNil(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
