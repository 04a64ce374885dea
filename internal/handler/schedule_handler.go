package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/response"
)

type scheduleExporter interface {
	ExportSchedule(ctx context.Context, studentID string, req dto.ScheduleExportRequest) (*service.ScheduleExport, error)
}

// ScheduleHandler serves the confirmed-timetable export.
type ScheduleHandler struct {
	exporter scheduleExporter
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(exporter scheduleExporter) *ScheduleHandler {
	return &ScheduleHandler{exporter: exporter}
}

// Export godoc
// @Summary Export a student's confirmed schedule
// @Tags Schedules
// @Produce octet-stream
// @Param studentId path string true "Student ID"
// @Param periodId query string true "Period ID"
// @Param format query string false "pdf or csv (default pdf)"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{studentId}/schedule/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	var req dto.ScheduleExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	export, err := h.exporter.ExportSchedule(c.Request.Context(), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, export.ContentType, export.Content)
}
