package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/jobtrail/authguard/storage"
)

// ErrInvalidJobSpec is wrapped by all Schedule-time validation failures, so
// callers can branch with errors.Is.
var ErrInvalidJobSpec = errors.New("invalid job spec")

// ValidateRecurrence checks a recurrence rule at schedule time. A nil rule is
// valid (one-shot job).
func ValidateRecurrence(rec *storage.Recurrence) error {
	if rec == nil {
		return nil
	}

	switch rec.Interval {
	case storage.IntervalDaily, storage.IntervalWeekly, storage.IntervalMonthly:
	default:
		return fmt.Errorf("%w: unknown interval %q", ErrInvalidJobSpec, rec.Interval)
	}

	if len(rec.DaysOfWeek) == 0 {
		return fmt.Errorf("%w: daysOfWeek must not be empty", ErrInvalidJobSpec)
	}
	for _, d := range rec.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: day of week %d out of range", ErrInvalidJobSpec, int(d))
		}
	}

	if _, _, err := parseTimeOfDay(rec.TimeOfDay); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobSpec, err)
	}

	return nil
}

// parseTimeOfDay parses a 24-hour "HH:MM" string.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("timeOfDay %q is not a valid 24-hour HH:MM time", s)
	}
	return t.Hour(), t.Minute(), nil
}

// WeeklyRecurrence builds the common single-weekday weekly rule.
func WeeklyRecurrence(day time.Weekday, timeOfDay string) *storage.Recurrence {
	return &storage.Recurrence{
		Interval:   storage.IntervalWeekly,
		DaysOfWeek: []time.Weekday{day},
		TimeOfDay:  timeOfDay,
	}
}

// NextOccurrence computes the earliest instant strictly after `after` that
// matches the recurrence rule. The rule must already be validated.
//
// Weekly occurrences are additionally required to be at least 24 hours after
// `after`: a weekly job dispatched late must never re-fire the same day.
//
// Monthly advances to the first matching weekday of the following calendar
// month at TimeOfDay.
func NextOccurrence(rec *storage.Recurrence, after time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(rec.TimeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidJobSpec, err)
	}

	switch rec.Interval {
	case storage.IntervalDaily:
		return nextMatchingDay(rec.DaysOfWeek, after, after, hour, minute)

	case storage.IntervalWeekly:
		return nextMatchingDay(rec.DaysOfWeek, after, after.Add(24*time.Hour), hour, minute)

	case storage.IntervalMonthly:
		firstOfNextMonth := time.Date(after.Year(), after.Month(), 1, 0, 0, 0, 0, after.Location()).AddDate(0, 1, 0)
		return nextMatchingDay(rec.DaysOfWeek, after, firstOfNextMonth, hour, minute)

	default:
		return time.Time{}, fmt.Errorf("%w: unknown interval %q", ErrInvalidJobSpec, rec.Interval)
	}
}

// nextMatchingDay returns the earliest instant at hour:minute on a day whose
// weekday is in days, strictly after `after` and not before `floor`.
func nextMatchingDay(days []time.Weekday, after, floor time.Time, hour, minute int) (time.Time, error) {
	allowed := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		allowed[d] = true
	}

	base := floor
	if after.After(base) {
		base = after
	}

	// At most 7 days separate any instant from the next matching weekday;
	// scan one extra day because the floor may skip today's candidate.
	for offset := 0; offset <= 7; offset++ {
		day := base.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, after.Location())
		if !allowed[candidate.Weekday()] {
			continue
		}
		if candidate.After(after) && !candidate.Before(floor) {
			return candidate, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: no matching occurrence within 7 days", ErrInvalidJobSpec)
}
