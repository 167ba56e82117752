package dto

import "github.com/noah-isme/uw-schedule-builder/internal/models"

// GenerateSchedulesRequest asks for every conflict-free schedule over a set of courses.
type GenerateSchedulesRequest struct {
	TermCode   string   `json:"termCode" validate:"required,len=4,numeric"`
	Courses    []string `json:"courses" validate:"required,min=1,max=12,dive,required,max=20"`
	ExamPolicy string   `json:"examPolicy" validate:"omitempty,oneof=FIRST DISTINCT first distinct"`
	// MaxResults lowers the configured result cap for this request.
	MaxResults int `json:"maxResults" validate:"omitempty,min=1"`
}

// ExportSchedulesQuery selects the download format.
type ExportSchedulesQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// CourseFetchResult reports how fetching one requested course went.
type CourseFetchResult struct {
	Course        string `json:"course"`
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalogNumber"`
	Success       bool   `json:"success"`
	SessionCount  int    `json:"sessionCount"`
	CacheHit      bool   `json:"cacheHit"`
	Error         string `json:"error,omitempty"`
}

// SessionView is a session decorated for display.
type SessionView struct {
	models.Session
	Days       string                  `json:"days"`
	TimeRange  string                  `json:"timeRange"`
	ExamDate   string                  `json:"examDate,omitempty"`
	Enrollment models.EnrollmentStatus `json:"enrollment"`
}

// GroupingWarning is a non-fatal anomaly found while preparing the search.
type GroupingWarning struct {
	Kind        string `json:"kind"`
	Course      string `json:"course"`
	Component   string `json:"component,omitempty"`
	ClassNumber string `json:"classNumber,omitempty"`
	Message     string `json:"message"`
}

// GenerateSchedulesResponse carries the conflict-free schedules and the diagnostics of the run.
type GenerateSchedulesResponse struct {
	RequestID     string              `json:"requestId"`
	TermCode      string              `json:"termCode"`
	ExamPolicy    string              `json:"examPolicy"`
	ScheduleCount int                 `json:"scheduleCount"`
	Truncated     bool                `json:"truncated"`
	Explored      int                 `json:"explored"`
	Schedules     [][]SessionView     `json:"schedules"`
	Courses       []CourseFetchResult `json:"courses"`
	Warnings      []GroupingWarning   `json:"warnings"`
}

// CourseSessionsResponse is the cached view of one course's sessions.
type CourseSessionsResponse struct {
	Course   models.CourseKey `json:"course"`
	CacheHit bool             `json:"cacheHit"`
	Sessions []SessionView    `json:"sessions"`
}

// HistoryQuery pages through request history.
type HistoryQuery struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"page_size" validate:"omitempty,min=1,max=100"`
}
