package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

func newScheduleRequestRepoMock(t *testing.T) (*ScheduleRequestRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewScheduleRequestRepository(sqlxDB), mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlxDB.Close()
	}
}

var scheduleRequestRowColumns = []string{"id", "term_code", "courses", "schedule_count", "status", "created_at"}

func TestScheduleRequestRepositoryCreate(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO schedule_requests").
		WithArgs("req-1", "1261", sqlmock.AnyArg(), 3, "COMPLETED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.ScheduleRequest{
		ID:            "req-1",
		TermCode:      "1261",
		Courses:       pq.StringArray{"MATH 135", "CS 135"},
		ScheduleCount: 3,
		Status:        models.ScheduleRequestStatusCompleted,
	}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestScheduleRequestRepositoryList(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(scheduleRequestRowColumns).
		AddRow("req-2", "1261", `{"MATH 135","CS 135"}`, 4, "COMPLETED", now).
		AddRow("req-1", "1259", `{"STAT 230"}`, 0, "NO_SESSIONS", now.Add(-time.Hour))
	mock.ExpectQuery("SELECT id, term_code, courses").
		WithArgs(20, 0).
		WillReturnRows(rows)

	entries, err := repo.List(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, pq.StringArray{"MATH 135", "CS 135"}, entries[0].Courses)
	assert.Equal(t, models.ScheduleRequestStatusNoSessions, entries[1].Status)
}

func TestScheduleRequestRepositoryCount(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, total)
}

func TestScheduleRequestRepositoryLatestEmpty(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, term_code, courses").WillReturnError(sql.ErrNoRows)

	entry, err := repo.Latest(context.Background())
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, ErrScheduleRequestNotFound)
}

func TestScheduleRequestRepositoryLatestFailure(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT id, term_code, courses").WillReturnError(boom)

	_, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrScheduleRequestNotFound)
}

func TestScheduleRequestRepositoryAll(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows(scheduleRequestRowColumns).
		AddRow("req-1", "1261", `{"MATH 135"}`, 1, "TRUNCATED", time.Now())
	mock.ExpectQuery("ORDER BY created_at ASC").WillReturnRows(rows)

	entries, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ScheduleRequestStatusTruncated, entries[0].Status)
}

func TestScheduleRequestRepositoryDeleteAll(t *testing.T) {
	repo, mock, cleanup := newScheduleRequestRepoMock(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM schedule_requests").WillReturnResult(sqlmock.NewResult(0, 5))

	removed, err := repo.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, removed)
}
