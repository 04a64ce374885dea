package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/stream"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type intakeRepository interface {
	CreateWithDetails(ctx context.Context, record *models.EnrollmentRecord, sectionIDs []string) error
	FindItemByID(ctx context.Context, id string) (*models.EnrollmentItem, error)
	ListByStudent(ctx context.Context, studentID string, filter dto.EnrollmentListRequest) ([]models.EnrollmentItem, int, error)
	ListDetailSectionsByRecordIDs(ctx context.Context, recordIDs []string) (map[string][]models.SectionDetail, error)
	FindActiveByStudentAndPeriod(ctx context.Context, studentID, periodID string, statuses []models.EnrollmentStatus, excludeID string) (*models.EnrollmentRecord, error)
}

type activePeriodReader interface {
	FindActive(ctx context.Context) (*models.Period, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event stream.Event) error
}

// IntakeService is the synchronous entry point of the enrollment flow. It
// persists the pending record and hands it to the stream; confirmation
// happens later on the worker pool. The duplicate pre-check here is a
// cheap fast-fail, the pipeline re-checks it authoritatively.
type IntakeService struct {
	repo      intakeRepository
	periods   activePeriodReader
	sections  sectionDetailReader
	publisher eventPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIntakeService constructs IntakeService.
func NewIntakeService(repo intakeRepository, periods activePeriodReader, sections sectionDetailReader, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *IntakeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{repo: repo, periods: periods, sections: sections, publisher: publisher, metrics: metrics, validator: validate, logger: logger}
}

// Submit creates a PENDING enrollment record for the active period and
// publishes the request event. The returned item reflects the record as
// accepted, not its eventual outcome. If the event cannot be published
// after the insert committed, the record stays PENDING and the call still
// succeeds; a reconciliation sweep owns that gap.
func (s *IntakeService) Submit(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	period, err := s.periods.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNoActivePeriod, "no active enrollment period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active period")
	}

	sections, err := s.sections.FindDetailsByIDs(ctx, req.SectionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}
	if msg := validateSectionSet(req.SectionIDs, sections, period.ID); msg != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, msg)
	}

	existing, err := s.repo.FindActiveByStudentAndPeriod(ctx, req.StudentID, period.ID, models.BlockingStatuses, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already enrolled in "+period.Label())
	}

	record := &models.EnrollmentRecord{
		StudentID: req.StudentID,
		PeriodID:  period.ID,
		Online:    req.Online,
	}
	if err := s.repo.CreateWithDetails(ctx, record, req.SectionIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	event := stream.Event{
		RecordID:    record.ID,
		StudentID:   record.StudentID,
		PeriodID:    record.PeriodID,
		SectionIDs:  req.SectionIDs,
		Online:      record.Online,
		RequestedAt: record.RequestedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// Insert is already committed; the record is durably PENDING
		// until something replays it.
		s.metrics.RecordEventPublish(false)
		s.logger.Error("failed to publish enrollment event",
			zap.String("record_id", record.ID), zap.Error(err))
	} else {
		s.metrics.RecordEventPublish(true)
	}

	item := &models.EnrollmentItem{
		EnrollmentRecord: *record,
		PeriodCode:       period.Code,
		PeriodName:       period.Name,
		Sections:         sections,
	}
	return item, nil
}

// Get returns one enrollment with its period and section display info.
func (s *IntakeService) Get(ctx context.Context, id string) (*models.EnrollmentItem, error) {
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	byRecord, err := s.repo.ListDetailSectionsByRecordIDs(ctx, []string{item.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment sections")
	}
	item.Sections = byRecord[item.ID]
	return item, nil
}

// ListForStudent returns a student's enrollments with pagination metadata.
func (s *IntakeService) ListForStudent(ctx context.Context, studentID string, filter dto.EnrollmentListRequest) ([]models.EnrollmentItem, *models.Pagination, error) {
	items, total, err := s.repo.ListByStudent(ctx, studentID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if err := s.attachSections(ctx, items); err != nil {
		return nil, nil, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return items, pagination, nil
}

func (s *IntakeService) attachSections(ctx context.Context, items []models.EnrollmentItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
	}
	byRecord, err := s.repo.ListDetailSectionsByRecordIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment sections")
	}
	for i := range items {
		items[i].Sections = byRecord[items[i].ID]
	}
	return nil
}

// validateSectionSet checks that every requested section exists and
// belongs to the active period. Returns an empty string when the set is
// acceptable.
func validateSectionSet(requested []string, sections []models.SectionDetail, periodID string) string {
	found := make(map[string]bool, len(sections))
	for i := range sections {
		found[sections[i].ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return "unknown sections: " + strings.Join(missing, ", ")
	}
	var foreign []string
	for i := range sections {
		if sections[i].PeriodID != periodID {
			foreign = append(foreign, sections[i].DisplayName())
		}
	}
	if len(foreign) > 0 {
		return "sections outside the active period: " + strings.Join(foreign, ", ")
	}
	return ""
}
