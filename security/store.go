package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobtrail/authguard/clock"
	"github.com/jobtrail/authguard/instrumentation"
)

const (
	// DefaultMaxEventsPerUser caps the per-user history length. Together with
	// DefaultRetentionWindow it bounds the recent-history window the anomaly
	// heuristics evaluate over.
	DefaultMaxEventsPerUser = 100

	// DefaultRetentionWindow is how long events are retained before eviction.
	// 24 hours comfortably covers the 15-minute anomaly window while keeping
	// memory bounded.
	DefaultRetentionWindow = 24 * time.Hour
)

// StoreConfig bounds the recent-history window. Both bounds apply: an event
// is evicted once it is older than RetentionWindow or once its user's history
// exceeds MaxEventsPerUser, whichever happens first.
type StoreConfig struct {
	// MaxEventsPerUser is the per-user history cap. Default: 100.
	MaxEventsPerUser int

	// RetentionWindow is the age bound for retained events. Default: 24h.
	RetentionWindow time.Duration
}

func (c *StoreConfig) applyDefaults() {
	if c.MaxEventsPerUser <= 0 {
		c.MaxEventsPerUser = DefaultMaxEventsPerUser
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = DefaultRetentionWindow
	}
}

// EventStore is an append-only, bounded record of authentication events.
// Events with a user ID are kept per user; events without one go to a global
// history. Logging never fails: internal problems are swallowed and reported
// to the auditor, because the store must never block the authentication flow.
type EventStore struct {
	mu     sync.RWMutex
	byUser map[string][]Event
	global []Event

	cfg     StoreConfig
	clock   clock.Clock
	logger  *slog.Logger
	auditor *Auditor
	inst    *instrumentation.Instrumentation
}

// NewEventStore creates an event store with the given bounds.
// clk, logger, and auditor may be nil; defaults are applied.
func NewEventStore(cfg StoreConfig, clk clock.Clock, logger *slog.Logger, auditor *Auditor) *EventStore {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStore{
		byUser:  make(map[string][]Event),
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		auditor: auditor,
	}
}

// SetInstrumentation attaches optional OpenTelemetry instrumentation.
func (s *EventStore) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
}

// Log appends an event to the recent history. It never returns an error and
// never panics; a failure is reported to the auditor and otherwise swallowed.
func (s *EventStore) Log(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Security event logging failed", "panic", r)
			if s.auditor != nil {
				s.auditor.LogEventStoreFailure("panic during append")
			}
		}
	}()

	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.UserID == "" {
		s.global = s.evict(append(s.global, event))
	} else {
		s.byUser[event.UserID] = s.evict(append(s.byUser[event.UserID], event))
	}

	if s.inst != nil {
		s.inst.Metrics().SecurityEventsLogged.Add(ctx, 1)
	}
}

// evict enforces both history bounds. Must be called with the mutex held.
// Events are appended in arrival order, so age eviction trims a prefix.
func (s *EventStore) evict(events []Event) []Event {
	cutoff := s.clock.Now().Add(-s.cfg.RetentionWindow)
	start := 0
	for start < len(events) && events[start].Timestamp.Before(cutoff) {
		start++
	}
	if over := len(events) - start - s.cfg.MaxEventsPerUser; over > 0 {
		start += over
	}
	if start == 0 {
		return events
	}

	if s.inst != nil {
		s.inst.Metrics().SecurityEventsDropped.Add(context.Background(), int64(start))
	}

	kept := make([]Event, len(events)-start)
	copy(kept, events[start:])
	return kept
}

// Recent returns the retained events for a user in arrival order. Events
// older than the retention window are excluded even if not yet evicted.
func (s *EventStore) Recent(userID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []Event
	if userID == "" {
		events = s.global
	} else {
		events = s.byUser[userID]
	}

	cutoff := s.clock.Now().Add(-s.cfg.RetentionWindow)
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
