package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never put raw user identifiers or email addresses in
// traces or metrics. Rate-limit keys embed emails; only log key scope names
// ("login", "signup", "oauth") and hashed identifiers. Traces are often
// persisted for extended periods and accessible to wider audiences than the
// production systems they describe.
const (
	// Rate limiter attributes
	AttrRateLimitScope   = "ratelimit.scope"   // Key scope: login, signup, oauth
	AttrRateLimitAllowed = "ratelimit.allowed" // Whether the check allowed (boolean)
	AttrRateLimitCount   = "ratelimit.count"   // Count within the current window

	// Security attributes
	AttrEventType   = "security.event_type"   // Security event type
	AttrUserIDHash  = "security.user_id_hash" // Hashed user identifier
	AttrSuspicious  = "security.suspicious"   // Anomaly evaluation outcome (boolean)
	AttrAnomalyRule = "security.anomaly_rule" // Which heuristic rule flagged

	// Scheduler attributes
	AttrJobID        = "scheduler.job_id"
	AttrJobType      = "scheduler.job_type"
	AttrJobRecurring = "scheduler.recurring" // Whether the job has a recurrence (boolean)
	AttrJobAttempt   = "scheduler.attempt"   // Dispatch attempt number
	AttrDueJobs      = "scheduler.due_jobs"  // Number of due jobs in a tick

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageType      = "storage.type"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddRateLimitAttributes adds rate limit check attributes to a span (nil-safe)
func AddRateLimitAttributes(span trace.Span, scope string, allowed bool, count int) {
	SetSpanAttributes(span,
		attribute.String(AttrRateLimitScope, scope),
		attribute.Bool(AttrRateLimitAllowed, allowed),
		attribute.Int(AttrRateLimitCount, count),
	)
}

// AddJobAttributes adds scheduler job attributes to a span (nil-safe)
func AddJobAttributes(span trace.Span, jobID, jobType string, recurring bool) {
	SetSpanAttributes(span,
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrJobType, jobType),
		attribute.Bool(AttrJobRecurring, recurring),
	)
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}
