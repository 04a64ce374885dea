package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/stream"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type stubIntakeRepo struct {
	created          *models.EnrollmentRecord
	createdIDs       []string
	createErr        error
	existing         *models.EnrollmentRecord
	existingErr      error
	item             *models.EnrollmentItem
	itemErr          error
	items            []models.EnrollmentItem
	total            int
	sectionsByRecord map[string][]models.SectionDetail
}

func (s *stubIntakeRepo) CreateWithDetails(ctx context.Context, record *models.EnrollmentRecord, sectionIDs []string) error {
	if s.createErr != nil {
		return s.createErr
	}
	record.ID = "rec-new"
	record.Status = models.EnrollmentStatusPending
	record.RequestedAt = time.Now().UTC()
	s.created = record
	s.createdIDs = sectionIDs
	return nil
}

func (s *stubIntakeRepo) FindItemByID(ctx context.Context, id string) (*models.EnrollmentItem, error) {
	if s.itemErr != nil {
		return nil, s.itemErr
	}
	return s.item, nil
}

func (s *stubIntakeRepo) ListByStudent(ctx context.Context, studentID string, filter dto.EnrollmentListRequest) ([]models.EnrollmentItem, int, error) {
	return s.items, s.total, nil
}

func (s *stubIntakeRepo) ListDetailSectionsByRecordIDs(ctx context.Context, recordIDs []string) (map[string][]models.SectionDetail, error) {
	return s.sectionsByRecord, nil
}

func (s *stubIntakeRepo) FindActiveByStudentAndPeriod(ctx context.Context, studentID, periodID string, statuses []models.EnrollmentStatus, excludeID string) (*models.EnrollmentRecord, error) {
	if s.existingErr != nil {
		return nil, s.existingErr
	}
	return s.existing, nil
}

type stubActivePeriodReader struct {
	period *models.Period
	err    error
}

func (s *stubActivePeriodReader) FindActive(ctx context.Context) (*models.Period, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.period, nil
}

type stubPublisher struct {
	events []stream.Event
	err    error
}

func (s *stubPublisher) Publish(ctx context.Context, event stream.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func activePeriod() *models.Period {
	return &models.Period{ID: "per-1", Code: "2025-1", Name: "Spring 2025", IsActive: true}
}

func TestIntakeSubmitCreatesAndPublishes(t *testing.T) {
	repo := &stubIntakeRepo{}
	sections := &stubSectionReader{sections: []models.SectionDetail{
		sectionDetail("sec-a", "MATH-101", "A", 5),
		sectionDetail("sec-b", "PHYS-201", "B", 3),
	}}
	publisher := &stubPublisher{}
	svc := NewIntakeService(repo, &stubActivePeriodReader{period: activePeriod()}, sections, publisher, nil, nil, nil)

	item, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a", "sec-b"},
		Online:     true,
	})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "rec-new", item.ID)
	assert.Equal(t, models.EnrollmentStatusPending, item.Status)
	assert.Equal(t, "2025-1", item.PeriodCode)
	assert.Len(t, item.Sections, 2)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, "rec-new", event.RecordID)
	assert.Equal(t, "stu-1", event.StudentID)
	assert.Equal(t, []string{"sec-a", "sec-b"}, event.SectionIDs)
	assert.True(t, event.Online)
}

func TestIntakeSubmitRejectsDuplicateSectionIDs(t *testing.T) {
	svc := NewIntakeService(&stubIntakeRepo{}, &stubActivePeriodReader{period: activePeriod()}, &stubSectionReader{}, &stubPublisher{}, nil, nil, nil)

	_, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a", "sec-a"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestIntakeSubmitNoActivePeriod(t *testing.T) {
	svc := NewIntakeService(&stubIntakeRepo{}, &stubActivePeriodReader{err: sql.ErrNoRows}, &stubSectionReader{}, &stubPublisher{}, nil, nil, nil)

	_, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNoActivePeriod.Code, appErr.Code)
}

func TestIntakeSubmitUnknownSection(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{sectionDetail("sec-a", "MATH-101", "A", 5)}}
	svc := NewIntakeService(&stubIntakeRepo{}, &stubActivePeriodReader{period: activePeriod()}, sections, &stubPublisher{}, nil, nil, nil)

	_, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a", "sec-b"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "unknown sections: sec-b", appErr.Message)
}

func TestIntakeSubmitSectionOutsideActivePeriod(t *testing.T) {
	foreign := sectionDetail("sec-a", "MATH-101", "A", 5)
	foreign.PeriodID = "per-2"
	sections := &stubSectionReader{sections: []models.SectionDetail{foreign}}
	svc := NewIntakeService(&stubIntakeRepo{}, &stubActivePeriodReader{period: activePeriod()}, sections, &stubPublisher{}, nil, nil, nil)

	_, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "sections outside the active period: MATH-101 (A)", appErr.Message)
}

func TestIntakeSubmitDuplicateEnrollment(t *testing.T) {
	repo := &stubIntakeRepo{existing: &models.EnrollmentRecord{ID: "rec-0", Status: models.EnrollmentStatusConfirmed}}
	sections := &stubSectionReader{sections: []models.SectionDetail{sectionDetail("sec-a", "MATH-101", "A", 5)}}
	svc := NewIntakeService(repo, &stubActivePeriodReader{period: activePeriod()}, sections, &stubPublisher{}, nil, nil, nil)

	_, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErr.Code)
	assert.Equal(t, "student already enrolled in Spring 2025", appErr.Message)
	assert.Nil(t, repo.created)
}

func TestIntakeSubmitPublishFailureStillReturnsRecord(t *testing.T) {
	repo := &stubIntakeRepo{}
	sections := &stubSectionReader{sections: []models.SectionDetail{sectionDetail("sec-a", "MATH-101", "A", 5)}}
	svc := NewIntakeService(repo, &stubActivePeriodReader{period: activePeriod()}, sections, &stubPublisher{err: errors.New("stream down")}, nil, nil, nil)

	item, err := svc.Submit(context.Background(), dto.CreateEnrollmentRequest{
		StudentID:  "stu-1",
		SectionIDs: []string{"sec-a"},
	})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.EnrollmentStatusPending, item.Status)
	assert.NotNil(t, repo.created)
}

func TestIntakeGetAttachesSections(t *testing.T) {
	repo := &stubIntakeRepo{
		item: &models.EnrollmentItem{
			EnrollmentRecord: models.EnrollmentRecord{ID: "rec-1", Status: models.EnrollmentStatusConfirmed},
			PeriodCode:       "2025-1",
		},
		sectionsByRecord: map[string][]models.SectionDetail{
			"rec-1": {sectionDetail("sec-a", "MATH-101", "A", 4)},
		},
	}
	svc := NewIntakeService(repo, &stubActivePeriodReader{}, &stubSectionReader{}, &stubPublisher{}, nil, nil, nil)

	item, err := svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Len(t, item.Sections, 1)
	assert.Equal(t, "sec-a", item.Sections[0].ID)
}

func TestIntakeGetNotFound(t *testing.T) {
	svc := NewIntakeService(&stubIntakeRepo{itemErr: sql.ErrNoRows}, &stubActivePeriodReader{}, &stubSectionReader{}, &stubPublisher{}, nil, nil, nil)

	_, err := svc.Get(context.Background(), "rec-404")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestIntakeListForStudent(t *testing.T) {
	repo := &stubIntakeRepo{
		items: []models.EnrollmentItem{
			{EnrollmentRecord: models.EnrollmentRecord{ID: "rec-1"}},
			{EnrollmentRecord: models.EnrollmentRecord{ID: "rec-2"}},
		},
		total: 7,
		sectionsByRecord: map[string][]models.SectionDetail{
			"rec-1": {sectionDetail("sec-a", "MATH-101", "A", 4)},
			"rec-2": {sectionDetail("sec-b", "PHYS-201", "B", 2)},
		},
	}
	svc := NewIntakeService(repo, &stubActivePeriodReader{}, &stubSectionReader{}, &stubPublisher{}, nil, nil, nil)

	items, pagination, err := svc.ListForStudent(context.Background(), "stu-1", dto.EnrollmentListRequest{Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "sec-a", items[0].Sections[0].ID)
	assert.Equal(t, "sec-b", items[1].Sections[0].ID)
	require.NotNil(t, pagination)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 3, pagination.PageSize)
	assert.Equal(t, 7, pagination.TotalCount)
}
