// Package scheduler enumerates conflict-free course timetables.
//
// Sessions are grouped per (course, component), encoded into minute-of-day
// intervals on a seven day week and searched exhaustively with backtracking.
// Exams sharing a weekly slot are exempt from conflicts when their calendar
// dates differ.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DaysPerWeek is the length of a weekly pattern, Monday first.
const DaysPerWeek = 7

// Date is a calendar date without time of day. The zero value means "no date".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// NewDate validates and builds a calendar date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	if month < time.January || month > time.December || day < 1 {
		return Date{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, int(month), day)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, int(month), day)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

func splitTimestamp(ts string) (string, string, error) {
	ts = strings.TrimSpace(ts)
	idx := strings.IndexAny(ts, "T ")
	if idx <= 0 || idx == len(ts)-1 {
		return "", "", fmt.Errorf("%w: %q has no date/time separator", ErrMalformedTimestamp, ts)
	}
	return ts[:idx], ts[idx+1:], nil
}

// EncodeTimeOfDay converts the time-of-day portion of a timestamp into minutes after midnight.
func EncodeTimeOfDay(ts string) (int, error) {
	_, clock, err := splitTimestamp(ts)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("%w: %q has no minutes", ErrMalformedTimestamp, ts)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q has invalid hour", ErrMalformedTimestamp, ts)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q has invalid minute", ErrMalformedTimestamp, ts)
	}
	return hour*60 + minute, nil
}

// DateOf extracts the calendar date of a timestamp.
func DateOf(ts string) (Date, error) {
	day, _, err := splitTimestamp(ts)
	if err != nil {
		return Date{}, err
	}
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q has invalid date", ErrMalformedTimestamp, ts)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// WeeklyFlags maps a 7 character pattern to meeting days. Only 'Y' marks a meeting.
func WeeklyFlags(pattern string) ([DaysPerWeek]bool, error) {
	var flags [DaysPerWeek]bool
	if len(pattern) != DaysPerWeek {
		return flags, fmt.Errorf("%w: %q must have %d characters", ErrMalformedPattern, pattern, DaysPerWeek)
	}
	for i := 0; i < DaysPerWeek; i++ {
		flags[i] = pattern[i] == 'Y'
	}
	return flags, nil
}

// IsOnlineOnly reports whether the session never meets in person.
func IsOnlineOnly(flags [DaysPerWeek]bool) bool {
	for _, meets := range flags {
		if meets {
			return false
		}
	}
	return true
}
