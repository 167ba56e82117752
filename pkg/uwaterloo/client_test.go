package uwaterloo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

type observerStub struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (o *observerStub) ObserveUpstream(source string, err error, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, source)
	o.errs = append(o.errs, err)
}

var math135 = models.CourseKey{TermCode: "1261", SubjectCode: "MATH", CatalogNumber: "135"}

func TestClassSchedulesDecodesSessions(t *testing.T) {
	fixture, err := os.ReadFile("testdata/math135.json")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/ClassSchedules/1261/MATH/135", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture)
	}))
	defer server.Close()

	observer := &observerStub{}
	client := NewClient(ClientConfig{BaseURL: server.URL + "/v3/", APIKey: "secret", Observer: observer})

	sessions, err := client.ClassSchedules(context.Background(), math135)
	require.NoError(t, err)
	require.Len(t, sessions, 4)

	lecture := sessions[0]
	assert.Equal(t, "5001", lecture.ClassNumber)
	assert.Equal(t, "LEC 001", lecture.Section)
	assert.Equal(t, models.ComponentLecture, lecture.Component)
	assert.Equal(t, "YNYNYNN", lecture.WeeklyPattern)
	assert.Equal(t, "2026-01-05T08:30:00", lecture.StartTime)
	assert.Equal(t, 120, lecture.EnrollmentCapacity)
	assert.Equal(t, math135, lecture.Course())

	assert.Equal(t, "TST 201", sessions[2].Section)
	assert.Equal(t, "5201", sessions[3].ClassNumber)
	assert.Equal(t, "NNYNNNN", sessions[3].WeeklyPattern)

	assert.Equal(t, []string{sourceClassSchedules}, observer.calls)
	assert.NoError(t, observer.errs[0])
}

func TestClassSchedulesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.ClassSchedules(context.Background(), math135)
	assert.ErrorIs(t, err, ErrCourseNotFound)
	assert.True(t, IsNotFound(err))
}

func TestClassSchedulesEmptyArrayIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.ClassSchedules(context.Background(), math135)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestClassSchedulesUnauthorizedAndServerErrors(t *testing.T) {
	status := http.StatusForbidden
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.ClassSchedules(context.Background(), math135)
	assert.ErrorIs(t, err, ErrUnauthorized)

	status = http.StatusBadGateway
	_, err = client.ClassSchedules(context.Background(), math135)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.False(t, IsNotFound(err))
}

func TestClassSchedulesMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"oops"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.ClassSchedules(context.Background(), math135)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClassSchedulesHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.ClassSchedules(ctx, math135)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRawClassSchedulesRejectsIncompleteKey(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://unused"})
	_, err := client.RawClassSchedules(context.Background(), models.CourseKey{TermCode: "1261", SubjectCode: "MATH"})
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCheckAPIKey(t *testing.T) {
	status := http.StatusNotFound
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "k"})
	assert.NoError(t, client.CheckAPIKey(context.Background(), "1261"))

	status = http.StatusUnauthorized
	assert.ErrorIs(t, client.CheckAPIKey(context.Background(), "1261"), ErrUnauthorized)
}

func TestNewLimiter(t *testing.T) {
	unlimited := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	limited := NewLimiter(1, 2)
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}
