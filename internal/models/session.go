package models

import (
	"fmt"
	"strings"
)

// Component classifies a session (lecture, tutorial, exam...).
type Component string

const (
	ComponentLecture  Component = "LEC"
	ComponentTutorial Component = "TUT"
	ComponentTest     Component = "TST"
	ComponentLab      Component = "LAB"
	ComponentSeminar  Component = "SEM"
)

var componentAliases = map[string]Component{
	"LECTURE":    ComponentLecture,
	"TUTORIAL":   ComponentTutorial,
	"TEST":       ComponentTest,
	"EXAM":       ComponentTest,
	"LABORATORY": ComponentLab,
	"SEMINAR":    ComponentSeminar,
}

// ParseComponent normalises upstream component labels. Unknown labels are kept upper-cased.
func ParseComponent(raw string) Component {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := componentAliases[value]; ok {
		return alias
	}
	return Component(value)
}

// IsExam reports whether the component is a standalone exam sitting.
func (c Component) IsExam() bool {
	return c == ComponentTest
}

// CourseKey identifies a course offering within a term.
type CourseKey struct {
	TermCode      string `json:"termCode"`
	SubjectCode   string `json:"subjectCode"`
	CatalogNumber string `json:"catalogNumber"`
}

// String renders the course the way students type it, e.g. "MATH 135".
func (k CourseKey) String() string {
	return fmt.Sprintf("%s %s", k.SubjectCode, k.CatalogNumber)
}

// Session is one schedulable class meeting as received from the course data source.
type Session struct {
	TermCode           string    `json:"termCode" csv:"term_code"`
	SubjectCode        string    `json:"subjectCode" csv:"subject_code"`
	CatalogNumber      string    `json:"catalogNumber" csv:"catalog_number"`
	ClassNumber        string    `json:"classNumber" csv:"class_number"`
	Section            string    `json:"section,omitempty" csv:"section"`
	Component          Component `json:"component" csv:"component"`
	WeeklyPattern      string    `json:"weeklyPattern" csv:"weekly_pattern"`
	StartTime          string    `json:"startTime" csv:"start_time"`
	EndTime            string    `json:"endTime" csv:"end_time"`
	EnrollmentCapacity int       `json:"enrollmentCapacity" csv:"enrollment_capacity"`
	EnrollmentTotal    int       `json:"enrollmentTotal" csv:"enrollment_total"`
}

// Course returns the key of the course the session belongs to.
func (s Session) Course() CourseKey {
	return CourseKey{TermCode: s.TermCode, SubjectCode: s.SubjectCode, CatalogNumber: s.CatalogNumber}
}

// EnrollmentStatus summarises seat availability for presentation.
type EnrollmentStatus struct {
	Class     string `json:"class"`
	Text      string `json:"text"`
	Remaining int    `json:"remaining"`
}

// Enrollment classifies remaining seats: FULL, limited (>= 80% taken) or available.
func (s Session) Enrollment() EnrollmentStatus {
	remaining := s.EnrollmentCapacity - s.EnrollmentTotal
	if remaining <= 0 {
		return EnrollmentStatus{Class: "full", Text: "FULL", Remaining: 0}
	}
	text := fmt.Sprintf("%d left", remaining)
	if s.EnrollmentCapacity > 0 && s.EnrollmentTotal*100 >= s.EnrollmentCapacity*80 {
		return EnrollmentStatus{Class: "limited", Text: text, Remaining: remaining}
	}
	return EnrollmentStatus{Class: "available", Text: text, Remaining: remaining}
}

var weekdayLetters = [7]string{"M", "T", "W", "Th", "F", "S", "Su"}

// MeetingDays renders the weekly pattern as day letters, e.g. "MWF".
func (s Session) MeetingDays() string {
	var b strings.Builder
	for i := 0; i < len(s.WeeklyPattern) && i < len(weekdayLetters); i++ {
		if s.WeeklyPattern[i] == 'Y' {
			b.WriteString(weekdayLetters[i])
		}
	}
	return b.String()
}

// TimeRange renders the meeting window on a 12-hour clock, e.g. "8:30 AM - 9:20 AM".
func (s Session) TimeRange() string {
	return fmt.Sprintf("%s - %s", clock12(s.StartTime), clock12(s.EndTime))
}

func clock12(ts string) string {
	idx := strings.IndexAny(ts, "T ")
	if idx < 0 || idx == len(ts)-1 {
		return "N/A"
	}
	var hour, minute int
	if _, err := fmt.Sscanf(ts[idx+1:], "%d:%d", &hour, &minute); err != nil || hour > 23 || minute > 59 {
		return "N/A"
	}
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, suffix)
}
