package security

import "time"

// EventType classifies an authentication-related security event.
type EventType string

// Recognized security event types.
const (
	EventLoginAttempt EventType = "login_attempt"
	EventLoginSuccess EventType = "login_success"
	EventLoginFailure EventType = "login_failure"
)

// Metadata keys the anomaly heuristics understand. Callers may attach any
// string keys; unknown keys are retained but ignored by the detector.
const (
	// MetaProvider records the access method used for the attempt, e.g.
	// "password", "google", "github".
	MetaProvider = "provider"

	// MetaHost records the host the attempt originated from, when known.
	MetaHost = "host"
)

// Event is one immutable authentication-related record. Events are retained
// per user in a bounded recent-history window; older entries are evicted,
// never archived.
type Event struct {
	Type      EventType
	UserID    string // empty for events with no resolved user
	Success   bool
	Metadata  map[string]string
	Timestamp time.Time
}
