package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/export"
)

// Export formats supported by the schedule endpoint.
const (
	ExportFormatPDF = "pdf"
	ExportFormatCSV = "csv"
)

type confirmedSlotReader interface {
	ListConfirmedSlots(ctx context.Context, studentID, periodID string) ([]models.SectionSlot, error)
}

type periodFinder interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ScheduleExport is a rendered schedule ready to stream to the client.
type ScheduleExport struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders a student's confirmed weekly schedule. Only
// CONFIRMED enrollments appear; pending and rejected ones do not.
type ExportService struct {
	slots     confirmedSlotReader
	periods   periodFinder
	csv       datasetRenderer
	pdf       datasetRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(slots confirmedSlotReader, periods periodFinder, csv, pdf datasetRenderer, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{slots: slots, periods: periods, csv: csv, pdf: pdf, validator: validate, logger: logger}
}

// ExportSchedule renders the student's confirmed schedule for one period.
// A student with nothing confirmed gets a file with headers only.
func (s *ExportService) ExportSchedule(ctx context.Context, studentID string, req dto.ScheduleExportRequest) (*ScheduleExport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	format := req.Format
	if format == "" {
		format = ExportFormatPDF
	}

	period, err := s.periods.FindByID(ctx, req.PeriodID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}

	slots, err := s.slots.ListConfirmedSlots(ctx, studentID, period.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	dataset := buildScheduleDataset(period, slots)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render schedule")
	}

	return &ScheduleExport{
		Content:     payload,
		ContentType: contentType,
		Filename:    buildScheduleFilename(period.Code, format),
	}, nil
}

// buildScheduleDataset lays the slots out as one table. Slots arrive
// ordered by weekday then start time, so grouping by the Day column
// yields one block per day in the PDF.
func buildScheduleDataset(period *models.Period, slots []models.SectionSlot) export.Dataset {
	headers := []string{"Day", "Start", "End", "Course", "Section", "Room"}
	rows := make([]map[string]string, 0, len(slots))
	for _, slot := range slots {
		rows = append(rows, map[string]string{
			"Day":     models.WeekdayName(slot.Weekday),
			"Start":   models.FormatMinutes(slot.StartMin),
			"End":     models.FormatMinutes(slot.EndMin),
			"Course":  strings.TrimSpace(slot.CourseCode + " " + slot.CourseName),
			"Section": slot.SectionLabel,
			"Room":    slot.Room,
		})
	}
	return export.Dataset{
		Title:   "Schedule " + period.Label(),
		Headers: headers,
		Rows:    rows,
		// Course names are the widest cells by far.
		ColumnWeights:        map[string]float64{"Course": 2.5, "Start": 0.8, "End": 0.8, "Section": 0.8},
		GroupByLeadingColumn: true,
	}
}

func buildScheduleFilename(periodCode, format string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("schedule_%s_%s.%s", sanitizeFilename(periodCode), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
