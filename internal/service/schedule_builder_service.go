package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/uw-schedule-builder/internal/dto"
	"github.com/noah-isme/uw-schedule-builder/internal/models"
	"github.com/noah-isme/uw-schedule-builder/internal/scheduler"
	appErrors "github.com/noah-isme/uw-schedule-builder/pkg/errors"
	"github.com/noah-isme/uw-schedule-builder/pkg/export"
	"github.com/noah-isme/uw-schedule-builder/pkg/uwaterloo"
)

type courseFetcher interface {
	ClassSchedules(ctx context.Context, course models.CourseKey) ([]models.Session, error)
	RawClassSchedules(ctx context.Context, course models.CourseKey) (json.RawMessage, error)
}

type examRowReader interface {
	ExamRow(ctx context.Context, course models.CourseKey) (uwaterloo.ExamRow, error)
}

type sessionCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type historyRecorder interface {
	Record(ctx context.Context, entry models.ScheduleRequest) error
}

type searchObserver interface {
	ObserveSearch(explored, results int, truncated bool, duration time.Duration)
	RecordGroupingWarning(kind string)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

var courseCodePattern = regexp.MustCompile(`^([A-Za-z]+)\s*(\d+[A-Za-z]?)$`)

// ScheduleBuilderConfig tunes fetching and search bounds.
type ScheduleBuilderConfig struct {
	FetchConcurrency int
	SearchTimeout    time.Duration
	MaxExploredNodes int
	MaxResults       int
	ExamPolicy       scheduler.ExamPolicy
	CacheTTL         time.Duration
	ExportsEnabled   bool
}

// ScheduleBuilderService fetches the requested courses and enumerates their conflict-free schedules.
type ScheduleBuilderService struct {
	fetcher   courseFetcher
	exams     examRowReader
	grouper   *scheduler.Grouper
	cache     sessionCache
	history   historyRecorder
	metrics   searchObserver
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleBuilderConfig
}

// ScheduleBuilderDeps groups optional collaborators. Nil members disable the matching feature.
type ScheduleBuilderDeps struct {
	Exams   examRowReader
	Cache   sessionCache
	History historyRecorder
	Metrics searchObserver
	CSV     csvRenderer
	PDF     pdfRenderer
}

// NewScheduleBuilderService wires the builder.
func NewScheduleBuilderService(
	fetcher courseFetcher,
	grouper *scheduler.Grouper,
	deps ScheduleBuilderDeps,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleBuilderConfig,
) *ScheduleBuilderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if grouper == nil {
		grouper = scheduler.NewGrouper(nil, cfg.ExamPolicy, logger)
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.ExamPolicy == "" {
		cfg.ExamPolicy = scheduler.ExamPolicyFirst
	}
	if deps.CSV == nil {
		deps.CSV = export.NewCSVExporter()
	}
	if deps.PDF == nil {
		deps.PDF = export.NewPDFExporter()
	}
	return &ScheduleBuilderService{
		fetcher:   fetcher,
		exams:     deps.Exams,
		grouper:   grouper,
		cache:     deps.Cache,
		history:   deps.History,
		metrics:   deps.Metrics,
		csv:       deps.CSV,
		pdf:       deps.PDF,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// ParseCourseCode splits a course code such as "math135" or "CS 246E" into subject and catalog number.
func ParseCourseCode(termCode, raw string) (models.CourseKey, error) {
	match := courseCodePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return models.CourseKey{}, fmt.Errorf("invalid course code %q", raw)
	}
	return models.CourseKey{
		TermCode:      termCode,
		SubjectCode:   strings.ToUpper(match[1]),
		CatalogNumber: strings.ToUpper(match[2]),
	}, nil
}

// Generate fetches every requested course, groups the sessions and returns all conflict-free schedules.
func (s *ScheduleBuilderService) Generate(ctx context.Context, req dto.GenerateSchedulesRequest) (*dto.GenerateSchedulesResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	courses, err := s.parseCourses(req)
	if err != nil {
		return nil, err
	}
	policy := s.cfg.ExamPolicy
	if req.ExamPolicy != "" {
		policy = scheduler.ParseExamPolicy(req.ExamPolicy)
	}

	fetched, results, err := s.fetchAll(ctx, courses)
	if err != nil {
		return nil, err
	}

	resp := &dto.GenerateSchedulesResponse{
		RequestID:  uuid.NewString(),
		TermCode:   req.TermCode,
		ExamPolicy: string(policy),
		Courses:    results,
		Schedules:  [][]dto.SessionView{},
		Warnings:   []dto.GroupingWarning{},
	}

	total := 0
	for _, cs := range fetched {
		total += len(cs.Sessions)
	}
	if total == 0 {
		s.recordHistory(ctx, resp.RequestID, req.TermCode, courses, 0, models.ScheduleRequestStatusNoSessions)
		return nil, appErrors.Clone(appErrors.ErrNoSessions, noSessionsMessage(results))
	}

	grouping, err := s.grouper.WithPolicy(policy).Group(ctx, fetched)
	resp.Warnings = s.warningViews(grouping.Warnings)
	if err != nil {
		return nil, err
	}

	if len(grouping.Groups) > 0 {
		result, err := s.search(ctx, grouping.Groups, req.MaxResults)
		if err != nil {
			return nil, err
		}
		resp.Explored = result.Explored
		resp.Truncated = result.Truncated
		resp.Schedules = make([][]dto.SessionView, 0, len(result.Schedules))
		for _, assignment := range result.Schedules {
			resp.Schedules = append(resp.Schedules, sessionViews(assignment))
		}
	}
	resp.ScheduleCount = len(resp.Schedules)

	status := models.ScheduleRequestStatusCompleted
	if resp.Truncated {
		status = models.ScheduleRequestStatusTruncated
	}
	s.recordHistory(ctx, resp.RequestID, req.TermCode, courses, resp.ScheduleCount, status)

	s.logger.Info("schedules generated",
		zap.String("request_id", resp.RequestID),
		zap.String("term", req.TermCode),
		zap.Int("courses", len(courses)),
		zap.Int("groups", len(grouping.Groups)),
		zap.Int("schedules", resp.ScheduleCount),
		zap.Bool("truncated", resp.Truncated),
	)
	return resp, nil
}

// Export runs Generate and renders the schedules as a CSV or PDF attachment.
func (s *ScheduleBuilderService) Export(ctx context.Context, req dto.GenerateSchedulesRequest, format string) (string, string, []byte, error) {
	if !s.cfg.ExportsEnabled {
		return "", "", nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "schedule exports are disabled")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return "", "", nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	resp, err := s.Generate(ctx, req)
	if err != nil {
		return "", "", nil, err
	}
	dataset := scheduleDataset(resp)
	filename := fmt.Sprintf("schedules-%s-%s.%s", resp.TermCode, resp.RequestID[:8], format)

	switch format {
	case "pdf":
		title := fmt.Sprintf("Term %s: %d schedule(s) for %s", resp.TermCode, resp.ScheduleCount, courseList(resp.Courses))
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf export")
		}
		return filename, "application/pdf", payload, nil
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv export")
		}
		return filename, "text/csv", payload, nil
	}
}

// CourseSessions returns the decorated sessions of one course, served from cache when possible.
func (s *ScheduleBuilderService) CourseSessions(ctx context.Context, course models.CourseKey) (*dto.CourseSessionsResponse, error) {
	course, err := normaliseCourse(course)
	if err != nil {
		return nil, err
	}
	sessions, hit, err := s.loadSessions(ctx, course)
	if err != nil {
		return nil, mapUpstreamError(err)
	}
	return &dto.CourseSessionsResponse{Course: course, CacheHit: hit, Sessions: sessionViews(sessions)}, nil
}

// RawCourse proxies the upstream class schedule document untouched.
func (s *ScheduleBuilderService) RawCourse(ctx context.Context, course models.CourseKey) (json.RawMessage, error) {
	course, err := normaliseCourse(course)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetcher.RawClassSchedules(ctx, course)
	if err != nil {
		return nil, mapUpstreamError(err)
	}
	return raw, nil
}

// ExamRow returns the scraped exam row of one course.
func (s *ScheduleBuilderService) ExamRow(ctx context.Context, course models.CourseKey) (*uwaterloo.ExamRow, error) {
	if s.exams == nil {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "exam date lookup is not configured")
	}
	course, err := normaliseCourse(course)
	if err != nil {
		return nil, err
	}
	row, err := s.exams.ExamRow(ctx, course)
	if err != nil {
		if errors.Is(err, scheduler.ErrExamDateNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no exam section published for %s", course))
		}
		return nil, mapUpstreamError(err)
	}
	return &row, nil
}

func (s *ScheduleBuilderService) parseCourses(req dto.GenerateSchedulesRequest) ([]models.CourseKey, error) {
	seen := make(map[models.CourseKey]bool, len(req.Courses))
	courses := make([]models.CourseKey, 0, len(req.Courses))
	for _, raw := range req.Courses {
		key, err := ParseCourseCode(req.TermCode, raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		courses = append(courses, key)
	}
	return courses, nil
}

// fetchAll loads every course concurrently. Per-course failures are reported in the results;
// only an upstream outage affecting every course fails the call.
func (s *ScheduleBuilderService) fetchAll(ctx context.Context, courses []models.CourseKey) ([]scheduler.CourseSessions, []dto.CourseFetchResult, error) {
	fetched := make([]scheduler.CourseSessions, len(courses))
	results := make([]dto.CourseFetchResult, len(courses))
	errs := make([]error, len(courses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, course := range courses {
		i, course := i, course
		g.Go(func() error {
			sessions, hit, err := s.loadSessions(gctx, course)
			result := dto.CourseFetchResult{
				Course:        course.String(),
				Subject:       course.SubjectCode,
				CatalogNumber: course.CatalogNumber,
				CacheHit:      hit,
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				result.Error = err.Error()
				s.logger.Warn("course fetch failed", zap.String("course", course.String()), zap.String("term", course.TermCode), zap.Error(err))
			} else {
				result.Success = true
				result.SessionCount = len(sessions)
			}
			fetched[i] = scheduler.CourseSessions{Course: course, Sessions: sessions}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	upstreamDown := len(courses) > 0
	for _, err := range errs {
		if err == nil || errors.Is(err, uwaterloo.ErrCourseNotFound) {
			upstreamDown = false
			break
		}
	}
	if upstreamDown {
		return nil, nil, mapUpstreamError(errs[0])
	}
	return fetched, results, nil
}

func (s *ScheduleBuilderService) loadSessions(ctx context.Context, course models.CourseKey) ([]models.Session, bool, error) {
	key := CourseCacheKey(course)
	if s.cache != nil {
		var cached []models.Session
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return cached, true, nil
		}
	}

	sessions, err := s.fetcher.ClassSchedules(ctx, course)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		// a failed cache write only costs a refetch later
		_ = s.cache.Set(ctx, key, sessions, s.cfg.CacheTTL)
	}
	return sessions, false, nil
}

func (s *ScheduleBuilderService) search(ctx context.Context, groups []scheduler.SessionGroup, maxResults int) (scheduler.Result, error) {
	limits := scheduler.Limits{MaxNodes: s.cfg.MaxExploredNodes, MaxResults: s.cfg.MaxResults}
	if maxResults > 0 && (limits.MaxResults == 0 || maxResults < limits.MaxResults) {
		limits.MaxResults = maxResults
	}

	searchCtx := ctx
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := scheduler.Search(searchCtx, groups, limits)
	if s.metrics != nil {
		s.metrics.ObserveSearch(result.Explored, len(result.Schedules), result.Truncated, time.Since(start))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scheduler.Result{}, ctxErr
		}
		s.logger.Warn("schedule search truncated",
			zap.Int("explored", result.Explored),
			zap.Int("results", len(result.Schedules)),
			zap.Error(err),
		)
	}
	return result, nil
}

func (s *ScheduleBuilderService) recordHistory(ctx context.Context, id, termCode string, courses []models.CourseKey, count int, status models.ScheduleRequestStatus) {
	if s.history == nil {
		return
	}
	names := make([]string, len(courses))
	for i, c := range courses {
		names[i] = c.String()
	}
	entry := models.ScheduleRequest{
		ID:            id,
		TermCode:      termCode,
		Courses:       names,
		ScheduleCount: count,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Warn("history record dropped", zap.String("request_id", id), zap.Error(err))
	}
}

func (s *ScheduleBuilderService) warningViews(warnings []*scheduler.GroupingError) []dto.GroupingWarning {
	views := make([]dto.GroupingWarning, 0, len(warnings))
	for _, w := range warnings {
		if s.metrics != nil {
			s.metrics.RecordGroupingWarning(string(w.Kind))
		}
		views = append(views, dto.GroupingWarning{
			Kind:        string(w.Kind),
			Course:      w.Course.String(),
			Component:   string(w.Component),
			ClassNumber: w.ClassNumber,
			Message:     w.Error(),
		})
	}
	return views
}

func normaliseCourse(course models.CourseKey) (models.CourseKey, error) {
	course.TermCode = strings.TrimSpace(course.TermCode)
	if _, err := strconv.Atoi(course.TermCode); err != nil || len(course.TermCode) != 4 {
		return course, appErrors.Clone(appErrors.ErrValidation, "term code must be four digits")
	}
	key, err := ParseCourseCode(course.TermCode, course.SubjectCode+course.CatalogNumber)
	if err != nil {
		return course, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return key, nil
}

func mapUpstreamError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, uwaterloo.ErrCourseNotFound):
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "course not found for the requested term")
	case errors.Is(err, uwaterloo.ErrUnauthorized), errors.Is(err, uwaterloo.ErrUpstream):
		return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, appErrors.ErrUpstreamUnavailable.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "course data provider timed out")
	default:
		return err
	}
}

func noSessionsMessage(results []dto.CourseFetchResult) string {
	failed := make([]string, 0, len(results))
	for _, r := range results {
		failed = append(failed, r.Course)
	}
	return fmt.Sprintf("no class sessions found for %s; check the term and course codes", strings.Join(failed, ", "))
}

func courseList(results []dto.CourseFetchResult) string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			names = append(names, r.Course)
		}
	}
	return strings.Join(names, ", ")
}

func sessionViews(sessions []models.Session) []dto.SessionView {
	views := make([]dto.SessionView, 0, len(sessions))
	for _, session := range sessions {
		view := dto.SessionView{
			Session:    session,
			Days:       session.MeetingDays(),
			TimeRange:  session.TimeRange(),
			Enrollment: session.Enrollment(),
		}
		if session.Component.IsExam() {
			if idx := strings.IndexAny(session.StartTime, "T "); idx > 0 {
				view.ExamDate = session.StartTime[:idx]
			}
		}
		views = append(views, view)
	}
	return views
}

var exportHeaders = []string{"course", "component", "section", "class_number", "days", "time", "exam_date", "enrollment"}

func scheduleDataset(resp *dto.GenerateSchedulesResponse) export.Dataset {
	dataset := export.Dataset{Headers: exportHeaders, SectionColumn: "schedule"}
	for i, schedule := range resp.Schedules {
		section := export.Section{Title: fmt.Sprintf("Schedule %d", i+1)}
		for _, view := range schedule {
			section.Rows = append(section.Rows, map[string]string{
				"course":       view.Course().String(),
				"component":    string(view.Component),
				"section":      view.Section,
				"class_number": view.ClassNumber,
				"days":         view.Days,
				"time":         view.TimeRange,
				"exam_date":    view.ExamDate,
				"enrollment":   view.Enrollment.Text,
			})
		}
		dataset.Sections = append(dataset.Sections, section)
	}
	return dataset
}
