package scheduler

import (
	"errors"
	"fmt"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

// Sentinel error kinds raised while encoding and grouping sessions.
var (
	ErrMalformedPattern     = errors.New("malformed weekly pattern")
	ErrMalformedTimestamp   = errors.New("malformed timestamp")
	ErrExamDateUnresolved   = errors.New("exam date unresolved")
	ErrExamDateNotFound     = errors.New("exam date not found")
	ErrSearchBudgetExceeded = errors.New("search budget exceeded")
)

// WarningKind labels a recoverable grouping anomaly.
type WarningKind string

const (
	WarningMalformedPattern   WarningKind = "MALFORMED_PATTERN"
	WarningMalformedTimestamp WarningKind = "MALFORMED_TIMESTAMP"
	WarningExamDateUnresolved WarningKind = "EXAM_DATE_UNRESOLVED"
	WarningEmptyComponent     WarningKind = "EMPTY_COMPONENT"
)

// GroupingError describes a session that was skipped or degraded during grouping.
type GroupingError struct {
	Kind        WarningKind
	Course      models.CourseKey
	Component   models.Component
	ClassNumber string
	Err         error
}

// Error implements the error interface.
func (e *GroupingError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.ClassNumber != "" {
		return fmt.Sprintf("%s class %s: %v", e.Course, e.ClassNumber, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Course, e.Component, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GroupingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
