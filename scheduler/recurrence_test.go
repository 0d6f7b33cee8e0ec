package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/jobtrail/authguard/storage"
)

// date builds a UTC timestamp; tests name the weekday in a comment where it
// matters.
func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestValidateRecurrence(t *testing.T) {
	tests := []struct {
		name    string
		rec     *storage.Recurrence
		wantErr bool
	}{
		{
			name:    "nil is valid one-shot",
			rec:     nil,
			wantErr: false,
		},
		{
			name: "valid weekly",
			rec: &storage.Recurrence{
				Interval:   storage.IntervalWeekly,
				DaysOfWeek: []time.Weekday{time.Sunday},
				TimeOfDay:  "18:00",
			},
			wantErr: false,
		},
		{
			name: "unknown interval",
			rec: &storage.Recurrence{
				Interval:   "fortnightly",
				DaysOfWeek: []time.Weekday{time.Sunday},
				TimeOfDay:  "18:00",
			},
			wantErr: true,
		},
		{
			name: "empty days of week",
			rec: &storage.Recurrence{
				Interval:  storage.IntervalWeekly,
				TimeOfDay: "18:00",
			},
			wantErr: true,
		},
		{
			name: "day out of range",
			rec: &storage.Recurrence{
				Interval:   storage.IntervalWeekly,
				DaysOfWeek: []time.Weekday{7},
				TimeOfDay:  "18:00",
			},
			wantErr: true,
		},
		{
			name: "malformed time of day",
			rec: &storage.Recurrence{
				Interval:   storage.IntervalWeekly,
				DaysOfWeek: []time.Weekday{time.Sunday},
				TimeOfDay:  "25:99",
			},
			wantErr: true,
		},
		{
			name: "time of day missing minutes",
			rec: &storage.Recurrence{
				Interval:   storage.IntervalWeekly,
				DaysOfWeek: []time.Weekday{time.Sunday},
				TimeOfDay:  "18",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecurrence(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecurrence() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidJobSpec) {
				t.Errorf("validation error should wrap ErrInvalidJobSpec, got %v", err)
			}
		})
	}
}

func TestNextOccurrence_WeeklyFromMidweek(t *testing.T) {
	rec := WeeklyRecurrence(time.Sunday, "18:00")

	// 2026-03-04 is a Wednesday; the upcoming Sunday is 2026-03-08.
	got, err := NextOccurrence(rec, date(2026, time.March, 4, 10, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 8, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want upcoming Sunday %v", got, want)
	}
}

func TestNextOccurrence_WeeklyAfterDispatchAdvancesSevenDays(t *testing.T) {
	rec := WeeklyRecurrence(time.Sunday, "18:00")

	// Dispatched exactly at the Sunday 18:00 occurrence.
	dispatched := date(2026, time.March, 8, 18, 0)
	got, err := NextOccurrence(rec, dispatched)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 15, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want following Sunday %v", got, want)
	}
}

func TestNextOccurrence_WeeklyNeverSameDay(t *testing.T) {
	rec := WeeklyRecurrence(time.Sunday, "18:00")

	// Sunday morning: today's 18:00 still matches, but weekly occurrences
	// must be at least 24h out.
	sundayMorning := date(2026, time.March, 8, 9, 0)
	got, err := NextOccurrence(rec, sundayMorning)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 15, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want next Sunday %v, never same day", got, want)
	}
}

func TestNextOccurrence_WeeklyMultipleDays(t *testing.T) {
	rec := &storage.Recurrence{
		Interval:   storage.IntervalWeekly,
		DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
		TimeOfDay:  "09:00",
	}

	// Wednesday: Thursday 09:00 is under 24h away, so Monday is next.
	got, err := NextOccurrence(rec, date(2026, time.March, 4, 12, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 9, 9, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want Monday %v", got, want)
	}
}

func TestNextOccurrence_DailySameDayWhenTimeAhead(t *testing.T) {
	rec := &storage.Recurrence{
		Interval:   storage.IntervalDaily,
		DaysOfWeek: []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		TimeOfDay:  "18:00",
	}

	got, err := NextOccurrence(rec, date(2026, time.March, 4, 10, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 4, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want same-day %v", got, want)
	}
}

func TestNextOccurrence_DailyNextDayWhenTimePassed(t *testing.T) {
	rec := &storage.Recurrence{
		Interval:   storage.IntervalDaily,
		DaysOfWeek: []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		TimeOfDay:  "18:00",
	}

	got, err := NextOccurrence(rec, date(2026, time.March, 4, 19, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 5, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want next day %v", got, want)
	}
}

func TestNextOccurrence_DailyRestrictedDays(t *testing.T) {
	rec := &storage.Recurrence{
		Interval:   storage.IntervalDaily,
		DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday},
		TimeOfDay:  "08:00",
	}

	// Wednesday: next weekend day is Saturday 2026-03-07.
	got, err := NextOccurrence(rec, date(2026, time.March, 4, 10, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.March, 7, 8, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want Saturday %v", got, want)
	}
}

func TestNextOccurrence_MonthlyFirstMatchingDayOfNextMonth(t *testing.T) {
	rec := &storage.Recurrence{
		Interval:   storage.IntervalMonthly,
		DaysOfWeek: []time.Weekday{time.Sunday},
		TimeOfDay:  "18:00",
	}

	// First Sunday of April 2026 is the 5th.
	got, err := NextOccurrence(rec, date(2026, time.March, 8, 18, 0))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if want := date(2026, time.April, 5, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want first Sunday of next month %v", got, want)
	}
}

func TestNextOccurrence_StrictlyAfter(t *testing.T) {
	rec := &storage.Recurrence{
		Interval:   storage.IntervalDaily,
		DaysOfWeek: []time.Weekday{time.Wednesday},
		TimeOfDay:  "18:00",
	}

	// Exactly at the occurrence: the result must be the next one, never now.
	at := date(2026, time.March, 4, 18, 0)
	got, err := NextOccurrence(rec, at)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if !got.After(at) {
		t.Errorf("NextOccurrence() = %v, must be strictly after %v", got, at)
	}
	if want := date(2026, time.March, 11, 18, 0); !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want next Wednesday %v", got, want)
	}
}
