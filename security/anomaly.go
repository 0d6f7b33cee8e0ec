package security

import (
	"context"
	"fmt"
	"time"

	"github.com/jobtrail/authguard/instrumentation"
)

const (
	// DefaultFailureThreshold is the number of login failures within the
	// failure window that flags a subsequent success as suspicious.
	DefaultFailureThreshold = 3

	// DefaultFailureWindow is the trailing interval scanned for failures
	// preceding a successful sign-in.
	DefaultFailureWindow = 15 * time.Minute
)

// AnomalyConfig tunes the suspicious-activity heuristics.
type AnomalyConfig struct {
	// FailureThreshold is the failure count that triggers the burst rule.
	// Default: 3.
	FailureThreshold int

	// FailureWindow is the trailing interval the rules evaluate over.
	// Default: 15 minutes.
	FailureWindow time.Duration
}

func (c *AnomalyConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
}

// Assessment is the outcome of a suspicious-activity evaluation. Reason and
// Recommendation are deterministic for a given event history and are surfaced
// to the user verbatim.
type Assessment struct {
	Suspicious     bool
	Reason         string
	Recommendation string
}

// Detector evaluates rule-based heuristics over a user's recent event
// history. It is not statistical: each rule is an explicit pattern match, and
// a rule whose required fields are absent is skipped rather than flagged.
type Detector struct {
	store *EventStore
	cfg   AnomalyConfig
	inst  *instrumentation.Instrumentation
}

// NewDetector creates a detector reading from the given event store.
func NewDetector(store *EventStore, cfg AnomalyConfig) *Detector {
	cfg.applyDefaults()
	return &Detector{store: store, cfg: cfg}
}

// SetInstrumentation attaches optional OpenTelemetry instrumentation.
func (d *Detector) SetInstrumentation(inst *instrumentation.Instrumentation) {
	d.inst = inst
}

// CheckSuspiciousActivity evaluates the heuristics for a user. It is intended
// to run on successful sign-in, after the success event has been logged.
func (d *Detector) CheckSuspiciousActivity(ctx context.Context, userID string) Assessment {
	events := d.store.Recent(userID)
	assessment := d.evaluate(events)

	if d.inst != nil {
		d.inst.Metrics().RecordAnomalyCheck(ctx, assessment.Suspicious)
	}
	return assessment
}

func (d *Detector) evaluate(events []Event) Assessment {
	success, ok := latestSuccess(events)
	if !ok {
		return Assessment{}
	}

	windowStart := success.Timestamp.Add(-d.cfg.FailureWindow)

	// Failures inside the trailing window, before the success.
	var failures []Event
	for _, e := range events {
		if e.Type != EventLoginFailure {
			continue
		}
		if e.Timestamp.Before(windowStart) || e.Timestamp.After(success.Timestamp) {
			continue
		}
		failures = append(failures, e)
	}

	if len(failures) >= d.cfg.FailureThreshold {
		return Assessment{
			Suspicious: true,
			Reason: fmt.Sprintf("%d failed sign-in attempts in the %d minutes before this successful sign-in",
				len(failures), int(d.cfg.FailureWindow.Minutes())),
			Recommendation: "If these attempts were not yours, change your password and review your account activity.",
		}
	}

	// Context-switch rule: a success via one method right after failures via
	// another suggests an attacker probing alternatives. Skipped when either
	// side lacks provider metadata.
	successProvider := success.Metadata[MetaProvider]
	if successProvider != "" {
		for _, f := range failures {
			failureProvider := f.Metadata[MetaProvider]
			if failureProvider != "" && failureProvider != successProvider {
				return Assessment{
					Suspicious: true,
					Reason: fmt.Sprintf("sign-in via %s immediately after a failed %s attempt",
						successProvider, failureProvider),
					Recommendation: "If you did not attempt both sign-in methods, review your account activity and connected sign-in providers.",
				}
			}
		}
	}

	return Assessment{}
}

// latestSuccess returns the most recent login_success event.
func latestSuccess(events []Event) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == EventLoginSuccess {
			return events[i], true
		}
	}
	return Event{}, false
}
