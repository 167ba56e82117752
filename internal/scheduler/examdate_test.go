package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

type examLookupStub struct {
	dates map[string]string
	err   error
	calls int
}

func (s *examLookupStub) LookupExamDate(ctx context.Context, course models.CourseKey) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	raw, ok := s.dates[course.String()]
	if !ok {
		return "", ErrExamDateNotFound
	}
	return raw, nil
}

func TestTermYear(t *testing.T) {
	year, err := TermYear("1261")
	require.NoError(t, err)
	assert.Equal(t, 2026, year)

	year, err = TermYear("1259")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)

	_, err = TermYear("12")
	assert.Error(t, err)
	_, err = TermYear("1xx1")
	assert.Error(t, err)
}

func TestNormalizeExamDateDayMonth(t *testing.T) {
	date, err := NormalizeExamDate("10/04", "1261", DayMonth)
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2026, Month: time.April, Day: 10}, date)
}

func TestNormalizeExamDateRangeUsesFirstDate(t *testing.T) {
	date, err := NormalizeExamDate(" 02/09-03/09 ", "1259", DayMonth)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-02", date.String())
}

func TestNormalizeExamDateMonthDay(t *testing.T) {
	date, err := NormalizeExamDate("02/09-02/09", "1261", MonthDay)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-09", date.String())
}

func TestNormalizeExamDateInvalid(t *testing.T) {
	for _, raw := range []string{"", "TBA", "10-04", "31/02", "aa/bb"} {
		_, err := NormalizeExamDate(raw, "1261", DayMonth)
		assert.Error(t, err, raw)
	}
}

func TestParseDateOrder(t *testing.T) {
	assert.Equal(t, MonthDay, ParseDateOrder("md"))
	assert.Equal(t, DayMonth, ParseDateOrder("DM"))
	assert.Equal(t, DayMonth, ParseDateOrder("whatever"))
}

func TestExamDateResolverResolve(t *testing.T) {
	lookup := &examLookupStub{dates: map[string]string{"MATH 135": "10/04"}}
	resolver := NewExamDateResolver(lookup, DayMonth)

	date, err := resolver.Resolve(context.Background(), models.CourseKey{TermCode: "1261", SubjectCode: "MATH", CatalogNumber: "135"})
	require.NoError(t, err)
	assert.Equal(t, "2026-04-10", date.String())
}

func TestExamDateResolverNotFound(t *testing.T) {
	resolver := NewExamDateResolver(&examLookupStub{}, DayMonth)

	_, err := resolver.Resolve(context.Background(), models.CourseKey{TermCode: "1261", SubjectCode: "CS", CatalogNumber: "135"})
	assert.ErrorIs(t, err, ErrExamDateUnresolved)
	assert.ErrorIs(t, err, ErrExamDateNotFound)
}

func TestExamDateResolverLookupFailure(t *testing.T) {
	resolver := NewExamDateResolver(&examLookupStub{err: errors.New("connection refused")}, DayMonth)

	_, err := resolver.Resolve(context.Background(), models.CourseKey{TermCode: "1261", SubjectCode: "CS", CatalogNumber: "135"})
	assert.ErrorIs(t, err, ErrExamDateUnresolved)
	assert.NotErrorIs(t, err, ErrExamDateNotFound)
}

func TestPatchExamSessionKeepsTimeOfDay(t *testing.T) {
	original := models.Session{
		ClassNumber: "5001",
		Component:   models.ComponentTest,
		StartTime:   "2026-01-05T19:00:00",
		EndTime:     "2026-01-05T20:50:00",
	}

	patched, err := PatchExamSession(original, Date{Year: 2026, Month: time.February, Day: 9})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-09T19:00:00", patched.StartTime)
	assert.Equal(t, "2026-02-09T20:50:00", patched.EndTime)
	assert.Equal(t, "2026-01-05T19:00:00", original.StartTime)
}

func TestPatchExamSessionZeroDateIsNoop(t *testing.T) {
	original := models.Session{StartTime: "2026-01-05T19:00:00", EndTime: "2026-01-05T20:50:00"}

	patched, err := PatchExamSession(original, Date{})
	require.NoError(t, err)
	assert.Equal(t, original, patched)
}
