// Package security provides the authentication safety net: an append-only
// security event store, rule-based anomaly detection, and audit logging with
// PII protection.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/jobtrail/authguard/clock"
	"github.com/jobtrail/authguard/internal/util"
)

// maxDetailLen bounds caller-supplied detail strings in audit records.
const maxDetailLen = 256

// Auditor handles security observability logging with PII protection.
// It is the sink for failures the rest of the core swallows: nothing that
// reaches the auditor may propagate back into the authentication flow.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	clock   clock.Clock
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		clock:   clock.System(),
	}
}

// SetClock replaces the time source used to stamp audit records.
func (a *Auditor) SetClock(clk clock.Clock) {
	if clk != nil {
		a.clock = clk
	}
}

// AuditEvent represents a security audit record
type AuditEvent struct {
	Type      string
	UserID    string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs an audit record with hashed PII. String details are
// sanitized and truncated before logging; they may carry caller-supplied
// text like executor error messages.
func (a *Auditor) LogEvent(event AuditEvent) {
	if !a.enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = a.clock.Now()
	}

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", HashForLogging(event.UserID),
		"details", sanitizeDetails(event.Details),
		"timestamp", event.Timestamp,
	)
}

func sanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if s, ok := v.(string); ok {
			out[k] = util.SafeTruncate(util.SanitizeLogValue(s), maxDetailLen)
		} else {
			out[k] = v
		}
	}
	return out
}

// LogRateLimitExceeded logs a rate limit denial.
// scope is the key's scope prefix, never the full key (keys embed emails).
func (a *Auditor) LogRateLimitExceeded(scope string, waitMinutes int) {
	a.LogEvent(AuditEvent{
		Type: "rate_limit_exceeded",
		Details: map[string]any{
			"scope":        scope,
			"wait_minutes": waitMinutes,
		},
	})
}

// LogSuspiciousActivity logs a flagged sign-in
func (a *Auditor) LogSuspiciousActivity(userID, reason string) {
	a.LogEvent(AuditEvent{
		Type:   "suspicious_activity",
		UserID: userID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogEventStoreFailure logs a swallowed event-store write failure
func (a *Auditor) LogEventStoreFailure(reason string) {
	a.LogEvent(AuditEvent{
		Type: "event_store_failure",
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogJobDispatchFailed logs a failed job dispatch
func (a *Auditor) LogJobDispatchFailed(jobID, jobType string, attempt int, deactivated bool) {
	a.LogEvent(AuditEvent{
		Type: "job_dispatch_failed",
		Details: map[string]any{
			"job_id":      jobID,
			"job_type":    jobType,
			"attempt":     attempt,
			"deactivated": deactivated,
		},
	})
}

// LogJobScheduled logs a newly scheduled job
func (a *Auditor) LogJobScheduled(userID, jobID, jobType string) {
	a.LogEvent(AuditEvent{
		Type:   "job_scheduled",
		UserID: userID,
		Details: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
		},
	})
}

// HashForLogging creates a SHA256 hash of sensitive data for logging
func HashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
