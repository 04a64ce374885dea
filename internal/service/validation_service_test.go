package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

type stubSectionReader struct {
	sections []models.SectionDetail
	err      error
	calls    int
}

func (s *stubSectionReader) FindDetailsByIDs(ctx context.Context, ids []string) ([]models.SectionDetail, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sections, nil
}

type stubSlotReader struct {
	slots []models.SectionSlot
	err   error
	calls int
}

func (s *stubSlotReader) ListSlotsForSections(ctx context.Context, sectionIDs []string) ([]models.SectionSlot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.slots, nil
}

type stubBlockingFinder struct {
	existing    *models.EnrollmentRecord
	err         error
	calls       int
	gotExclude  string
	gotStatuses []models.EnrollmentStatus
}

func (s *stubBlockingFinder) FindActiveByStudentAndPeriod(ctx context.Context, studentID, periodID string, statuses []models.EnrollmentStatus, excludeID string) (*models.EnrollmentRecord, error) {
	s.calls++
	s.gotExclude = excludeID
	s.gotStatuses = statuses
	if s.err != nil {
		return nil, s.err
	}
	return s.existing, nil
}

func sectionDetail(id, course, label string, seatsLeft int) models.SectionDetail {
	return models.SectionDetail{
		Section:    models.Section{ID: id, PeriodID: "per-1", Label: label, SeatsTotal: 30, SeatsLeft: seatsLeft},
		CourseCode: course,
	}
}

func pendingRecord() *models.EnrollmentRecord {
	return &models.EnrollmentRecord{ID: "rec-1", StudentID: "stu-1", PeriodID: "per-1", Status: models.EnrollmentStatusPending}
}

func TestValidationPipelineAllValid(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{
		sectionDetail("sec-a", "MATH-101", "A", 5),
		sectionDetail("sec-b", "PHYS-201", "B", 3),
	}}
	slots := &stubSlotReader{slots: []models.SectionSlot{
		slot("sec-a", "MATH-101", "A", 1, 600, 660),
		slot("sec-b", "PHYS-201", "B", 2, 600, 660),
	}}
	finder := &stubBlockingFinder{}
	pipeline := NewValidationPipeline(sections, slots, finder, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a", "sec-b"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
	assert.Equal(t, 1, sections.calls)
	assert.Equal(t, 1, slots.calls)
	assert.Equal(t, 1, finder.calls)
}

func TestValidationPipelineUnknownSection(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{
		sectionDetail("sec-a", "MATH-101", "A", 5),
	}}
	slots := &stubSlotReader{}
	finder := &stubBlockingFinder{}
	pipeline := NewValidationPipeline(sections, slots, finder, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a", "sec-x"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "unknown sections: sec-x", result.Reason)
	assert.Zero(t, slots.calls)
	assert.Zero(t, finder.calls)
}

func TestValidationPipelineFullSection(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{
		sectionDetail("sec-a", "MATH-101", "A", 0),
		sectionDetail("sec-b", "PHYS-201", "B", 4),
	}}
	slots := &stubSlotReader{}
	finder := &stubBlockingFinder{}
	pipeline := NewValidationPipeline(sections, slots, finder, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a", "sec-b"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "no seats left in MATH-101 (A)", result.Reason)
	assert.Zero(t, slots.calls)
}

func TestValidationPipelineScheduleConflict(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{
		sectionDetail("sec-a", "MATH-101", "A", 5),
		sectionDetail("sec-b", "PHYS-201", "B", 3),
	}}
	slots := &stubSlotReader{slots: []models.SectionSlot{
		slot("sec-a", "MATH-101", "A", 1, 600, 660),
		slot("sec-b", "PHYS-201", "B", 1, 630, 690),
	}}
	finder := &stubBlockingFinder{}
	pipeline := NewValidationPipeline(sections, slots, finder, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a", "sec-b"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "MATH-101 (A) Monday 10:00-11:00 overlaps PHYS-201 (B) Monday 10:30-11:30", result.Reason)
	assert.Zero(t, finder.calls)
}

func TestValidationPipelineDuplicatePending(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{sectionDetail("sec-a", "MATH-101", "A", 5)}}
	finder := &stubBlockingFinder{existing: &models.EnrollmentRecord{ID: "rec-0", Status: models.EnrollmentStatusPending}}
	pipeline := NewValidationPipeline(sections, &stubSlotReader{}, finder, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "student already has a pending enrollment in this period", result.Reason)
}

func TestValidationPipelineDuplicateConfirmed(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{sectionDetail("sec-a", "MATH-101", "A", 5)}}
	finder := &stubBlockingFinder{existing: &models.EnrollmentRecord{ID: "rec-0", Status: models.EnrollmentStatusConfirmed}}
	pipeline := NewValidationPipeline(sections, &stubSlotReader{}, finder, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "student already has a confirmed enrollment in this period", result.Reason)
}

func TestValidationPipelineExcludesRecordUnderProcessing(t *testing.T) {
	sections := &stubSectionReader{sections: []models.SectionDetail{sectionDetail("sec-a", "MATH-101", "A", 5)}}
	finder := &stubBlockingFinder{}
	pipeline := NewValidationPipeline(sections, &stubSlotReader{}, finder, nil, nil)

	_, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a"})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", finder.gotExclude)
	assert.Equal(t, models.BlockingStatuses, finder.gotStatuses)
}

func TestValidationPipelineSectionLoadError(t *testing.T) {
	sections := &stubSectionReader{err: errors.New("db down")}
	pipeline := NewValidationPipeline(sections, &stubSlotReader{}, &stubBlockingFinder{}, nil, nil)

	result, err := pipeline.Run(context.Background(), pendingRecord(), []string{"sec-a"})
	require.Error(t, err)
	assert.False(t, result.Valid)
}
