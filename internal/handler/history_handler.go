package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uw-schedule-builder/internal/dto"
	"github.com/noah-isme/uw-schedule-builder/internal/models"
	appErrors "github.com/noah-isme/uw-schedule-builder/pkg/errors"
	"github.com/noah-isme/uw-schedule-builder/pkg/response"
)

type historyReader interface {
	List(ctx context.Context, query dto.HistoryQuery) ([]models.ScheduleRequest, *models.Pagination, error)
	Latest(ctx context.Context) (*models.ScheduleRequest, error)
	Clear(ctx context.Context) (int64, error)
	Export(ctx context.Context) (string, []byte, error)
}

// HistoryHandler serves the stored history of generate calls.
type HistoryHandler struct {
	service historyReader
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(svc historyReader) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// List godoc
// @Summary List past schedule generation requests
// @Tags History
// @Produce json
// @Param page query int false "Page, starting at 1"
// @Param page_size query int false "Entries per page (max 100)"
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	var query dto.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid history query"))
		return
	}
	entries, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Latest godoc
// @Summary Show the most recent schedule generation request
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /history/latest [get]
func (h *HistoryHandler) Latest(c *gin.Context) {
	entry, err := h.service.Latest(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Export godoc
// @Summary Download the request history as JSON
// @Tags History
// @Produce json
// @Success 200 {file} file
// @Router /history/export [get]
func (h *HistoryHandler) Export(c *gin.Context) {
	filename, payload, err := h.service.Export(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/json", payload)
}

// Clear godoc
// @Summary Delete the request history
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /history [delete]
func (h *HistoryHandler) Clear(c *gin.Context) {
	removed, err := h.service.Clear(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}
