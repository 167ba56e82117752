package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uw-schedule-builder/internal/dto"
	"github.com/noah-isme/uw-schedule-builder/internal/models"
	"github.com/noah-isme/uw-schedule-builder/internal/repository"
	appErrors "github.com/noah-isme/uw-schedule-builder/pkg/errors"
	"github.com/noah-isme/uw-schedule-builder/pkg/jobs"
)

// JobTypeRecordScheduleRequest is the queue job type carrying a models.ScheduleRequest.
const JobTypeRecordScheduleRequest = "schedule_request.record"

const maxHistoryPageSize = 100

type scheduleRequestRepository interface {
	Create(ctx context.Context, entry *models.ScheduleRequest) error
	List(ctx context.Context, limit, offset int) ([]models.ScheduleRequest, error)
	Count(ctx context.Context) (int, error)
	Latest(ctx context.Context) (*models.ScheduleRequest, error)
	All(ctx context.Context) ([]models.ScheduleRequest, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type dbObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// HistoryConfig tunes history behaviour.
type HistoryConfig struct {
	Enabled      bool
	DefaultLimit int
}

// HistoryService records generate calls and serves them back.
type HistoryService struct {
	repo    scheduleRequestRepository
	queue   jobEnqueuer
	metrics dbObserver
	logger  *zap.Logger
	cfg     HistoryConfig
}

// NewHistoryService constructs the service. Without a queue entries are written synchronously.
func NewHistoryService(repo scheduleRequestRepository, metrics dbObserver, logger *zap.Logger, cfg HistoryConfig) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	return &HistoryService{repo: repo, metrics: metrics, logger: logger, cfg: cfg}
}

// UseQueue routes Record through the given queue.
func (s *HistoryService) UseQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Enabled reports whether history is stored at all.
func (s *HistoryService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.repo != nil
}

// Record stores an entry, asynchronously when a queue is attached.
func (s *HistoryService) Record(ctx context.Context, entry models.ScheduleRequest) error {
	if !s.Enabled() {
		return nil
	}
	if s.queue == nil {
		return s.persist(ctx, entry)
	}
	return s.queue.Enqueue(jobs.Job{Type: JobTypeRecordScheduleRequest, Payload: entry})
}

// HandleJob is the queue handler persisting queued entries.
func (s *HistoryService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeRecordScheduleRequest {
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	entry, ok := job.Payload.(models.ScheduleRequest)
	if !ok {
		s.logger.Error("dropping malformed history job", zap.String("job_id", job.ID))
		return nil
	}
	return s.persist(ctx, entry)
}

func (s *HistoryService) persist(ctx context.Context, entry models.ScheduleRequest) error {
	start := time.Now()
	err := s.repo.Create(ctx, &entry)
	s.observe("schedule_requests.create", start)
	if err != nil {
		return err
	}
	s.logger.Debug("history recorded", zap.String("request_id", entry.ID), zap.String("status", string(entry.Status)))
	return nil
}

// List pages through entries newest first.
func (s *HistoryService) List(ctx context.Context, query dto.HistoryQuery) ([]models.ScheduleRequest, *models.Pagination, error) {
	if !s.Enabled() {
		return nil, nil, historyDisabled()
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = s.cfg.DefaultLimit
	}
	if size > maxHistoryPageSize {
		size = maxHistoryPageSize
	}

	start := time.Now()
	entries, err := s.repo.List(ctx, size, (page-1)*size)
	s.observe("schedule_requests.list", start)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list history")
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count history")
	}
	if entries == nil {
		entries = []models.ScheduleRequest{}
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Latest returns the most recent entry.
func (s *HistoryService) Latest(ctx context.Context) (*models.ScheduleRequest, error) {
	if !s.Enabled() {
		return nil, historyDisabled()
	}
	start := time.Now()
	entry, err := s.repo.Latest(ctx)
	s.observe("schedule_requests.latest", start)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleRequestNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "history is empty")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest history entry")
	}
	return entry, nil
}

// Clear removes every entry.
func (s *HistoryService) Clear(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, historyDisabled()
	}
	start := time.Now()
	removed, err := s.repo.DeleteAll(ctx)
	s.observe("schedule_requests.delete_all", start)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear history")
	}
	s.logger.Info("history cleared", zap.Int64("removed", removed))
	return removed, nil
}

// Export renders the whole history as an indented JSON document.
func (s *HistoryService) Export(ctx context.Context) (string, []byte, error) {
	if !s.Enabled() {
		return "", nil, historyDisabled()
	}
	start := time.Now()
	entries, err := s.repo.All(ctx)
	s.observe("schedule_requests.all", start)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export history")
	}
	if entries == nil {
		entries = []models.ScheduleRequest{}
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode history")
	}
	filename := fmt.Sprintf("schedule-history-%s.json", time.Now().UTC().Format("2006-01-02"))
	return filename, payload, nil
}

func (s *HistoryService) observe(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

func historyDisabled() error {
	return appErrors.Clone(appErrors.ErrFeatureDisabled, "request history is disabled")
}
