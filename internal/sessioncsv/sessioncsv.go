// Package sessioncsv reads and writes class sessions as CSV so schedules can be built offline.
package sessioncsv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
	"github.com/noah-isme/uw-schedule-builder/internal/scheduler"
	"github.com/noah-isme/uw-schedule-builder/pkg/uwaterloo"
)

// Read decodes sessions from CSV with a header row matching the models.Session csv tags.
func Read(r io.Reader) ([]models.Session, error) {
	var sessions []models.Session
	if err := gocsv.Unmarshal(r, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions csv: %w", err)
	}
	for i := range sessions {
		s := &sessions[i]
		s.SubjectCode = strings.ToUpper(strings.TrimSpace(s.SubjectCode))
		s.CatalogNumber = strings.ToUpper(strings.TrimSpace(s.CatalogNumber))
		s.Component = models.ParseComponent(string(s.Component))
	}
	return sessions, nil
}

// Write encodes sessions with a header row.
func Write(w io.Writer, sessions []models.Session) error {
	if err := gocsv.Marshal(sessions, w); err != nil {
		return fmt.Errorf("encode sessions csv: %w", err)
	}
	return nil
}

// ByCourse splits sessions per course, keeping first-seen course order and row order within a course.
func ByCourse(sessions []models.Session) []scheduler.CourseSessions {
	index := make(map[models.CourseKey]int)
	var out []scheduler.CourseSessions
	for _, s := range sessions {
		key := s.Course()
		idx, ok := index[key]
		if !ok {
			idx = len(out)
			index[key] = idx
			out = append(out, scheduler.CourseSessions{Course: key})
		}
		out[idx].Sessions = append(out[idx].Sessions, s)
	}
	return out
}

// Source serves sessions loaded from a file in place of the Open Data API.
type Source struct {
	courses map[models.CourseKey][]models.Session
	order   []scheduler.CourseSessions
}

// NewSource indexes sessions by course.
func NewSource(sessions []models.Session) *Source {
	order := ByCourse(sessions)
	courses := make(map[models.CourseKey][]models.Session, len(order))
	for _, cs := range order {
		courses[cs.Course] = cs.Sessions
	}
	return &Source{courses: courses, order: order}
}

// Courses lists the courses present in the file in first-seen order.
func (s *Source) Courses() []models.CourseKey {
	keys := make([]models.CourseKey, 0, len(s.order))
	for _, cs := range s.order {
		keys = append(keys, cs.Course)
	}
	return keys
}

// ClassSchedules returns the file's sessions of the course.
func (s *Source) ClassSchedules(_ context.Context, course models.CourseKey) ([]models.Session, error) {
	sessions, ok := s.courses[course]
	if !ok {
		return nil, fmt.Errorf("%s (term %s): %w", course, course.TermCode, uwaterloo.ErrCourseNotFound)
	}
	return append([]models.Session(nil), sessions...), nil
}

// RawClassSchedules returns the course's sessions as JSON.
func (s *Source) RawClassSchedules(ctx context.Context, course models.CourseKey) (json.RawMessage, error) {
	sessions, err := s.ClassSchedules(ctx, course)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessions)
}
