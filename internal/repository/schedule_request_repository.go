package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

// ErrScheduleRequestNotFound is returned when the history is empty.
var ErrScheduleRequestNotFound = errors.New("schedule request not found")

const scheduleRequestColumns = `id, term_code, courses, schedule_count, status, created_at`

// ScheduleRequestRepository persists the history of generate calls.
type ScheduleRequestRepository struct {
	db *sqlx.DB
}

// NewScheduleRequestRepository constructs the repository.
func NewScheduleRequestRepository(db *sqlx.DB) *ScheduleRequestRepository {
	return &ScheduleRequestRepository{db: db}
}

// Create inserts one history entry.
func (r *ScheduleRequestRepository) Create(ctx context.Context, entry *models.ScheduleRequest) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_requests (id, term_code, courses, schedule_count, status, created_at)
VALUES (:id, :term_code, :courses, :schedule_count, :status, :created_at)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert schedule request: %w", err)
	}
	return nil
}

// List returns history entries newest first.
func (r *ScheduleRequestRepository) List(ctx context.Context, limit, offset int) ([]models.ScheduleRequest, error) {
	query := `SELECT ` + scheduleRequestColumns + ` FROM schedule_requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var entries []models.ScheduleRequest
	if err := r.db.SelectContext(ctx, &entries, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list schedule requests: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (r *ScheduleRequestRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM schedule_requests`); err != nil {
		return 0, fmt.Errorf("count schedule requests: %w", err)
	}
	return total, nil
}

// Latest returns the most recent entry.
func (r *ScheduleRequestRepository) Latest(ctx context.Context) (*models.ScheduleRequest, error) {
	query := `SELECT ` + scheduleRequestColumns + ` FROM schedule_requests ORDER BY created_at DESC LIMIT 1`
	var entry models.ScheduleRequest
	if err := r.db.GetContext(ctx, &entry, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleRequestNotFound
		}
		return nil, fmt.Errorf("latest schedule request: %w", err)
	}
	return &entry, nil
}

// All returns every entry oldest first, for export.
func (r *ScheduleRequestRepository) All(ctx context.Context) ([]models.ScheduleRequest, error) {
	query := `SELECT ` + scheduleRequestColumns + ` FROM schedule_requests ORDER BY created_at ASC`
	var entries []models.ScheduleRequest
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("export schedule requests: %w", err)
	}
	return entries, nil
}

// DeleteAll clears the history and reports how many rows were removed.
func (r *ScheduleRequestRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedule_requests`)
	if err != nil {
		return 0, fmt.Errorf("clear schedule requests: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear schedule requests: %w", err)
	}
	return removed, nil
}
