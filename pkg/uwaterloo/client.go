// Package uwaterloo talks to the University of Waterloo course data sources: the Open Data API v3
// class schedules endpoint and the public schedule-of-classes page used for exam dates.
package uwaterloo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

var (
	// ErrCourseNotFound is returned when the API has no classes for the requested course.
	ErrCourseNotFound = errors.New("course not found")
	// ErrUnauthorized is returned when the API rejects the configured key.
	ErrUnauthorized = errors.New("api key rejected")
	// ErrUpstream wraps unexpected upstream statuses and transport failures.
	ErrUpstream = errors.New("upstream request failed")
)

const (
	sourceClassSchedules = "class_schedules"
	maxBodyBytes         = 8 << 20
)

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(source string, err error, duration time.Duration)
}

// ClientConfig configures the Open Data API client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Limiter throttles outbound calls; it may be shared with the exam scraper.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
	Observer   Observer
}

// Client fetches class schedules from the Open Data API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   Observer
}

// NewLimiter builds the shared outbound limiter. A non-positive rate disables throttling.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewClient constructs an Open Data API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
		observer:   cfg.Observer,
	}
}

type classRecord struct {
	ClassNumber           int              `json:"classNumber"`
	CourseComponent       string           `json:"courseComponent"`
	ClassSection          int              `json:"classSection"`
	TermCode              string           `json:"termCode"`
	MaxEnrollmentCapacity int              `json:"maxEnrollmentCapacity"`
	EnrolledStudents      int              `json:"enrolledStudents"`
	ScheduleData          []scheduleRecord `json:"scheduleData"`
}

type scheduleRecord struct {
	ClassMeetingStartTime       string `json:"classMeetingStartTime"`
	ClassMeetingEndTime         string `json:"classMeetingEndTime"`
	ClassMeetingWeekPatternCode string `json:"classMeetingWeekPatternCode"`
}

// ClassSchedules returns one session per meeting of every class of the course, in API order.
func (c *Client) ClassSchedules(ctx context.Context, course models.CourseKey) ([]models.Session, error) {
	raw, err := c.RawClassSchedules(ctx, course)
	if err != nil {
		return nil, err
	}

	var records []classRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode class schedules for %s: %v", ErrUpstream, course, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s (term %s): %w", course, course.TermCode, ErrCourseNotFound)
	}
	return toSessions(course, records), nil
}

// RawClassSchedules returns the upstream JSON document untouched.
func (c *Client) RawClassSchedules(ctx context.Context, course models.CourseKey) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: base url not configured", ErrUpstream)
	}
	if course.TermCode == "" || course.SubjectCode == "" || course.CatalogNumber == "" {
		return nil, fmt.Errorf("incomplete course key %q: %w", course.String(), ErrCourseNotFound)
	}

	endpoint := fmt.Sprintf("%s/ClassSchedules/%s/%s/%s", c.baseURL,
		url.PathEscape(course.TermCode), url.PathEscape(course.SubjectCode), url.PathEscape(course.CatalogNumber))

	start := time.Now()
	body, err := c.get(ctx, endpoint)
	if c.observer != nil {
		c.observer.ObserveUpstream(sourceClassSchedules, ignoreNotFound(err), time.Since(start))
	}
	if err != nil {
		if errors.Is(err, ErrCourseNotFound) {
			return nil, fmt.Errorf("%s (term %s): %w", course, course.TermCode, ErrCourseNotFound)
		}
		return nil, err
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		return nil, fmt.Errorf("%s (term %s): %w", course, course.TermCode, ErrCourseNotFound)
	}
	return json.RawMessage(body), nil
}

// CheckAPIKey performs a cheap authenticated call and reports whether the key is accepted.
func (c *Client) CheckAPIKey(ctx context.Context, termCode string) error {
	_, err := c.RawClassSchedules(ctx, models.CourseKey{TermCode: termCode, SubjectCode: "MATH", CatalogNumber: "135"})
	if err != nil && !errors.Is(err, ErrCourseNotFound) {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound, http.StatusNoContent:
		return nil, ErrCourseNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	return body, nil
}

func toSessions(course models.CourseKey, records []classRecord) []models.Session {
	sessions := make([]models.Session, 0, len(records))
	for _, rec := range records {
		component := models.ParseComponent(rec.CourseComponent)
		for _, meeting := range rec.ScheduleData {
			sessions = append(sessions, models.Session{
				TermCode:           course.TermCode,
				SubjectCode:        course.SubjectCode,
				CatalogNumber:      course.CatalogNumber,
				ClassNumber:        fmt.Sprintf("%d", rec.ClassNumber),
				Section:            fmt.Sprintf("%s %03d", component, rec.ClassSection),
				Component:          component,
				WeeklyPattern:      meeting.ClassMeetingWeekPatternCode,
				StartTime:          meeting.ClassMeetingStartTime,
				EndTime:            meeting.ClassMeetingEndTime,
				EnrollmentCapacity: rec.MaxEnrollmentCapacity,
				EnrollmentTotal:    rec.EnrolledStudents,
			})
		}
	}
	return sessions
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrCourseNotFound) {
		return nil
	}
	return err
}
