package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uw-schedule-builder/internal/dto"
	"github.com/noah-isme/uw-schedule-builder/internal/middleware"
	"github.com/noah-isme/uw-schedule-builder/internal/models"
	appErrors "github.com/noah-isme/uw-schedule-builder/pkg/errors"
	"github.com/noah-isme/uw-schedule-builder/pkg/response"
	"github.com/noah-isme/uw-schedule-builder/pkg/uwaterloo"
)

type scheduleBuilder interface {
	Generate(ctx context.Context, req dto.GenerateSchedulesRequest) (*dto.GenerateSchedulesResponse, error)
	Export(ctx context.Context, req dto.GenerateSchedulesRequest, format string) (string, string, []byte, error)
	CourseSessions(ctx context.Context, course models.CourseKey) (*dto.CourseSessionsResponse, error)
	RawCourse(ctx context.Context, course models.CourseKey) (json.RawMessage, error)
	ExamRow(ctx context.Context, course models.CourseKey) (*uwaterloo.ExamRow, error)
}

type courseCacheInvalidator interface {
	InvalidateTerm(ctx context.Context, termCode string) (int, error)
}

// ScheduleBuilderHandler exposes schedule generation and course lookup endpoints.
type ScheduleBuilderHandler struct {
	service scheduleBuilder
	cache   courseCacheInvalidator
}

// NewScheduleBuilderHandler constructs the handler. cache may be nil.
func NewScheduleBuilderHandler(svc scheduleBuilder, cache courseCacheInvalidator) *ScheduleBuilderHandler {
	return &ScheduleBuilderHandler{service: svc, cache: cache}
}

// Generate godoc
// @Summary Generate every conflict-free schedule for a set of courses
// @Description Fetches the class sessions of each course for the term and enumerates every combination
// @Description that picks one section per component without overlapping meetings.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.GenerateSchedulesRequest true "Courses to combine"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /schedules/generate [post]
func (h *ScheduleBuilderHandler) Generate(c *gin.Context) {
	var req dto.GenerateSchedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule generation payload"))
		return
	}
	resp, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, allCached(resp.Courses))
	middleware.SetMeta(c, "explored", resp.Explored)
	response.JSON(c, http.StatusOK, resp, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Generate schedules and download them as CSV or PDF
// @Tags Schedules
// @Accept json
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param payload body dto.GenerateSchedulesRequest true "Courses to combine"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /schedules/export [post]
func (h *ScheduleBuilderHandler) Export(c *gin.Context) {
	var query dto.ExportSchedulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	var req dto.GenerateSchedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule generation payload"))
		return
	}
	filename, contentType, payload, err := h.service.Export(c.Request.Context(), req, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, contentType, payload)
}

// Course godoc
// @Summary List the class sessions of one course
// @Tags Courses
// @Produce json
// @Param term path string true "Term code, e.g. 1261"
// @Param subject path string true "Subject code, e.g. MATH"
// @Param catalog path string true "Catalog number, e.g. 135"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{term}/{subject}/{catalog} [get]
func (h *ScheduleBuilderHandler) Course(c *gin.Context) {
	resp, err := h.service.CourseSessions(c.Request.Context(), courseFromPath(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, resp.CacheHit)
	response.JSON(c, http.StatusOK, resp, nil, middleware.ExtractMeta(c))
}

// RawCourse godoc
// @Summary Proxy the upstream class schedule document of one course
// @Tags Courses
// @Produce json
// @Param term path string true "Term code"
// @Param subject path string true "Subject code"
// @Param catalog path string true "Catalog number"
// @Success 200 {array} object
// @Failure 404 {object} response.Envelope
// @Router /courses/{term}/{subject}/{catalog}/raw [get]
func (h *ScheduleBuilderHandler) RawCourse(c *gin.Context) {
	raw, err := h.service.RawCourse(c.Request.Context(), courseFromPath(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// Exam godoc
// @Summary Show the published exam row of one course
// @Tags Courses
// @Produce json
// @Param term path string true "Term code"
// @Param subject path string true "Subject code"
// @Param catalog path string true "Catalog number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{term}/{subject}/{catalog}/exam [get]
func (h *ScheduleBuilderHandler) Exam(c *gin.Context) {
	row, err := h.service.ExamRow(c.Request.Context(), courseFromPath(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// InvalidateCache godoc
// @Summary Drop cached course sessions
// @Tags Courses
// @Produce json
// @Param term query string false "Only drop this term"
// @Success 200 {object} response.Envelope
// @Router /courses/cache [delete]
func (h *ScheduleBuilderHandler) InvalidateCache(c *gin.Context) {
	if h.cache == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "course cache is disabled"))
		return
	}
	removed, err := h.cache.InvalidateTerm(c.Request.Context(), strings.TrimSpace(c.Query("term")))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate course cache"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}

func courseFromPath(c *gin.Context) models.CourseKey {
	return models.CourseKey{
		TermCode:      c.Param("term"),
		SubjectCode:   c.Param("subject"),
		CatalogNumber: c.Param("catalog"),
	}
}

func allCached(courses []dto.CourseFetchResult) bool {
	if len(courses) == 0 {
		return false
	}
	for _, course := range courses {
		if !course.CacheHit {
			return false
		}
	}
	return true
}
