package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type fakeScheduleExporter struct {
	export *service.ScheduleExport
	err    error

	lastStudent string
	lastReq     dto.ScheduleExportRequest
}

func (f *fakeScheduleExporter) ExportSchedule(_ context.Context, studentID string, req dto.ScheduleExportRequest) (*service.ScheduleExport, error) {
	f.lastStudent = studentID
	f.lastReq = req
	return f.export, f.err
}

func TestScheduleHandlerExportStreamsAttachment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeScheduleExporter{export: &service.ScheduleExport{
		Content:     []byte("Day,Start,End,Course,Section,Room\n"),
		ContentType: "text/csv",
		Filename:    "schedule_2025-1_20250101_090000.csv",
	}}
	handler := NewScheduleHandler(srv)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/stu-1/schedule/export?periodId=per-1&format=csv", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}}

	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", srv.lastStudent)
	assert.Equal(t, "per-1", srv.lastReq.PeriodID)
	assert.Equal(t, "csv", srv.lastReq.Format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="schedule_2025-1_20250101_090000.csv"`)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "Day,Start,End,Course,Section,Room\n", w.Body.String())
}

func TestScheduleHandlerExportUnknownPeriod(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeScheduleExporter{err: appErrors.Clone(appErrors.ErrNotFound, "period not found")}
	handler := NewScheduleHandler(srv)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/stu-1/schedule/export?periodId=per-missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
