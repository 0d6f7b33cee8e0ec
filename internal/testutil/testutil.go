// Package testutil provides testing utilities and helpers for the authguard
// library.
package testutil

import (
	"context"
	"sync"
	"time"
)

// MockClock provides a controllable time source for deterministic testing.
// It is safe for concurrent use: scheduler dispatches read it from worker
// goroutines while tests advance it.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new mock clock.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// RecordingExecutor captures dispatched jobs for assertions. Err, when set,
// is returned from every Execute call.
type RecordingExecutor struct {
	mu         sync.Mutex
	dispatches []Dispatch

	Err error
}

// Dispatch is one recorded Execute call.
type Dispatch struct {
	JobType string
	Payload map[string]string
}

// Execute records the call and returns Err.
func (e *RecordingExecutor) Execute(ctx context.Context, jobType string, payload map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatches = append(e.dispatches, Dispatch{JobType: jobType, Payload: payload})
	return e.Err
}

// Dispatches returns a copy of the recorded calls.
func (e *RecordingExecutor) Dispatches() []Dispatch {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Dispatch, len(e.dispatches))
	copy(out, e.dispatches)
	return out
}

// Count returns the number of recorded calls.
func (e *RecordingExecutor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dispatches)
}
