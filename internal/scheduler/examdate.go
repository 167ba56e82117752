package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

// ExamDateLookup resolves the raw exam date string published for a course.
// Implementations return ErrExamDateNotFound when the course has no exam sitting.
type ExamDateLookup interface {
	LookupExamDate(ctx context.Context, course models.CourseKey) (string, error)
}

// DateOrder tells how the two numeric components of a raw exam date are laid out.
type DateOrder string

const (
	DayMonth DateOrder = "DM"
	MonthDay DateOrder = "MD"
)

// ParseDateOrder falls back to DayMonth for unknown values.
func ParseDateOrder(raw string) DateOrder {
	if DateOrder(strings.ToUpper(strings.TrimSpace(raw))) == MonthDay {
		return MonthDay
	}
	return DayMonth
}

// TermYear derives the calendar year from a term code such as "1261" (2026).
func TermYear(termCode string) (int, error) {
	termCode = strings.TrimSpace(termCode)
	if len(termCode) < 3 {
		return 0, fmt.Errorf("term code %q too short", termCode)
	}
	yy, err := strconv.Atoi(termCode[1:3])
	if err != nil {
		return 0, fmt.Errorf("term code %q: %w", termCode, err)
	}
	return 2000 + yy, nil
}

// NormalizeExamDate converts "10/04" or a range such as "10/04-10/04" into a calendar date.
// Only the first date of a range is used.
func NormalizeExamDate(raw, termCode string, order DateOrder) (Date, error) {
	value := strings.TrimSpace(raw)
	if idx := strings.Index(value, "-"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return Date{}, fmt.Errorf("unrecognised exam date %q", raw)
	}
	first, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Date{}, fmt.Errorf("unrecognised exam date %q", raw)
	}
	second, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Date{}, fmt.Errorf("unrecognised exam date %q", raw)
	}
	year, err := TermYear(termCode)
	if err != nil {
		return Date{}, err
	}
	day, month := first, second
	if order == MonthDay {
		day, month = second, first
	}
	return NewDate(year, time.Month(month), day)
}

// ExamDateResolver adapts an ExamDateLookup into calendar dates.
type ExamDateResolver struct {
	lookup ExamDateLookup
	order  DateOrder
}

// NewExamDateResolver wires the external lookup.
func NewExamDateResolver(lookup ExamDateLookup, order DateOrder) *ExamDateResolver {
	if order == "" {
		order = DayMonth
	}
	return &ExamDateResolver{lookup: lookup, order: order}
}

// Resolve returns the exam date for the course. Any failure wraps ErrExamDateUnresolved,
// and additionally ErrExamDateNotFound when the source has no record.
func (r *ExamDateResolver) Resolve(ctx context.Context, course models.CourseKey) (Date, error) {
	if r == nil || r.lookup == nil {
		return Date{}, fmt.Errorf("%w: no exam date source configured", ErrExamDateUnresolved)
	}
	raw, err := r.lookup.LookupExamDate(ctx, course)
	if err != nil {
		if errors.Is(err, ErrExamDateNotFound) {
			return Date{}, fmt.Errorf("%w: %w", ErrExamDateUnresolved, err)
		}
		return Date{}, fmt.Errorf("%w: lookup %s: %w", ErrExamDateUnresolved, course, err)
	}
	date, err := NormalizeExamDate(raw, course.TermCode, r.order)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %w", ErrExamDateUnresolved, err)
	}
	return date, nil
}

// PatchExamSession returns a copy of the session whose start and end carry the given date
// while keeping their original time of day.
func PatchExamSession(session models.Session, date Date) (models.Session, error) {
	if date.IsZero() {
		return session, nil
	}
	_, startClock, err := splitTimestamp(session.StartTime)
	if err != nil {
		return session, err
	}
	_, endClock, err := splitTimestamp(session.EndTime)
	if err != nil {
		return session, err
	}
	patched := session
	patched.StartTime = date.String() + "T" + startClock
	patched.EndTime = date.String() + "T" + endClock
	return patched, nil
}
