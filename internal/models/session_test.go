package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseComponent(t *testing.T) {
	assert.Equal(t, ComponentLecture, ParseComponent(" lecture "))
	assert.Equal(t, ComponentTest, ParseComponent("TST"))
	assert.Equal(t, ComponentTest, ParseComponent("Exam"))
	assert.Equal(t, Component("CLN"), ParseComponent("cln"))
	assert.True(t, ParseComponent("test").IsExam())
	assert.False(t, ComponentTutorial.IsExam())
}

func TestSessionEnrollment(t *testing.T) {
	cases := []struct {
		capacity, total int
		class, text     string
	}{
		{capacity: 100, total: 100, class: "full", text: "FULL"},
		{capacity: 100, total: 105, class: "full", text: "FULL"},
		{capacity: 100, total: 80, class: "limited", text: "20 left"},
		{capacity: 100, total: 79, class: "available", text: "21 left"},
		{capacity: 0, total: 0, class: "full", text: "FULL"},
	}
	for _, tc := range cases {
		status := Session{EnrollmentCapacity: tc.capacity, EnrollmentTotal: tc.total}.Enrollment()
		assert.Equal(t, tc.class, status.Class, "%d/%d", tc.total, tc.capacity)
		assert.Equal(t, tc.text, status.Text, "%d/%d", tc.total, tc.capacity)
	}
}

func TestSessionMeetingDays(t *testing.T) {
	assert.Equal(t, "MWF", Session{WeeklyPattern: "YNYNYNN"}.MeetingDays())
	assert.Equal(t, "TThSu", Session{WeeklyPattern: "NYNYNNY"}.MeetingDays())
	assert.Equal(t, "", Session{WeeklyPattern: "NNNNNNN"}.MeetingDays())
}

func TestSessionTimeRange(t *testing.T) {
	s := Session{StartTime: "2026-01-05T08:30:00", EndTime: "2026-01-05T13:20:00"}
	assert.Equal(t, "8:30 AM - 1:20 PM", s.TimeRange())

	midnight := Session{StartTime: "2026-01-05T00:05:00", EndTime: "bogus"}
	assert.Equal(t, "12:05 AM - N/A", midnight.TimeRange())
}

func TestCourseKeyString(t *testing.T) {
	assert.Equal(t, "MATH 135", CourseKey{TermCode: "1261", SubjectCode: "MATH", CatalogNumber: "135"}.String())
}
