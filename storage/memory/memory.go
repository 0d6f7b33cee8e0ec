// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobtrail/authguard/instrumentation"
	"github.com/jobtrail/authguard/storage"
)

// Store is an in-memory implementation of all storage interfaces.
// It implements RateLimitStore and JobStore.
//
// A single mutex guards each map so the check-and-increment sequence on a
// rate-limit key is never interleaved across callers.
type Store struct {
	mu sync.RWMutex

	rateLimits map[string]*storage.RateLimitRecord
	jobs       map[string]*storage.Job

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.RateLimitStore = (*Store)(nil)
	_ storage.JobStore       = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (5 minutes).
func New() *Store {
	return NewWithInterval(5 * time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// The cleanup loop drops expired rate-limit windows so idle keys do not
// accumulate. Set interval <= 0 to disable cleanup entirely (tests).
func NewWithInterval(interval time.Duration) *Store {
	s := &Store{
		rateLimits:      make(map[string]*storage.RateLimitRecord),
		jobs:            make(map[string]*storage.Job),
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	if interval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// SetLogger replaces the store's logger. Call before the store is in use.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// SetInstrumentation registers the storage size gauges with inst so the
// rate-limit and job counts are observable. Safe to call with nil.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}

	err := inst.RegisterSizeCallbacks(
		func() int64 {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return int64(len(s.rateLimits))
		},
		func() int64 {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return int64(len(s.jobs))
		},
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpiredWindows(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpiredWindows drops rate-limit records whose window has ended.
// An expired record is equivalent to no record: the next Incr starts fresh.
func (s *Store) cleanupExpiredWindows(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.rateLimits {
		if now.Sub(rec.WindowStart) >= rec.Window {
			delete(s.rateLimits, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Rate limit window cleanup completed",
			"removed", removed,
			"remaining", len(s.rateLimits))
	}
}

// ============================================================
// RateLimitStore Implementation
// ============================================================

// Incr applies the fixed-window check-and-increment atomically under the
// store mutex. Absence of a prior record is treated as zero prior requests.
func (s *Store) Incr(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (storage.RateLimitRecord, error) {
	if key == "" {
		return storage.RateLimitRecord{}, fmt.Errorf("rate limit key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.rateLimits[key]
	if !exists || now.Sub(rec.WindowStart) >= window {
		// Fresh window: overwrite, never merge.
		rec = &storage.RateLimitRecord{
			Key:         key,
			WindowStart: now,
			Count:       1,
			Limit:       limit,
			Window:      window,
		}
		s.rateLimits[key] = rec
		return *rec, nil
	}

	rec.Count++
	rec.Limit = limit
	rec.Window = window
	return *rec, nil
}

// GetRateLimit retrieves the current record for a key, or nil if none exists.
func (s *Store) GetRateLimit(ctx context.Context, key string) (*storage.RateLimitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.rateLimits[key]
	if !exists {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// DeleteRateLimit removes the record for a key.
func (s *Store) DeleteRateLimit(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rateLimits, key)
	return nil
}

// ============================================================
// JobStore Implementation
// ============================================================

// SaveJob inserts or overwrites a job by ID.
func (s *Store) SaveJob(ctx context.Context, job *storage.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("invalid job")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = storage.CloneJob(job)
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, storage.ErrJobNotFound
	}
	return storage.CloneJob(job), nil
}

// ListDueJobs returns all active jobs whose ScheduledFor is at or before now.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time) ([]*storage.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*storage.Job
	for _, job := range s.jobs {
		if job.Active && !job.ScheduledFor.After(now) {
			due = append(due, storage.CloneJob(job))
		}
	}
	return due, nil
}

// ListJobs returns all stored jobs.
func (s *Store) ListJobs(ctx context.Context) ([]*storage.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*storage.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, storage.CloneJob(job))
	}
	return jobs, nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	return nil
}
