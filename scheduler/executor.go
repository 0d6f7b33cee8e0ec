package scheduler

import "context"

// Executor performs the actual work for a due job, typically sending an email
// or notification. It is supplied by the embedding application; the scheduler
// only decides when to call it.
//
// Execute must be safe for concurrent calls. A returned error marks the
// dispatch as failed and the job is retried on a later tick.
type Executor interface {
	Execute(ctx context.Context, jobType string, payload map[string]string) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, jobType string, payload map[string]string) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, jobType string, payload map[string]string) error {
	return f(ctx, jobType, payload)
}
