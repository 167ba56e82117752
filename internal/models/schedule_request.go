package models

import (
	"time"

	"github.com/lib/pq"
)

// ScheduleRequestStatus captures the outcome of a schedule generation request.
type ScheduleRequestStatus string

const (
	ScheduleRequestStatusCompleted  ScheduleRequestStatus = "COMPLETED"
	ScheduleRequestStatusNoSessions ScheduleRequestStatus = "NO_SESSIONS"
	ScheduleRequestStatusTruncated  ScheduleRequestStatus = "TRUNCATED"
)

// ScheduleRequest is a history entry of a student's generate call.
type ScheduleRequest struct {
	ID            string                `db:"id" json:"id"`
	TermCode      string                `db:"term_code" json:"termCode"`
	Courses       pq.StringArray        `db:"courses" json:"courses"`
	ScheduleCount int                   `db:"schedule_count" json:"scheduleCount"`
	Status        ScheduleRequestStatus `db:"status" json:"status"`
	CreatedAt     time.Time             `db:"created_at" json:"timestamp"`
}
