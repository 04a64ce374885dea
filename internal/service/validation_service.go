package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

type sectionDetailReader interface {
	FindDetailsByIDs(ctx context.Context, ids []string) ([]models.SectionDetail, error)
}

type slotReader interface {
	ListSlotsForSections(ctx context.Context, sectionIDs []string) ([]models.SectionSlot, error)
}

type blockingEnrollmentFinder interface {
	FindActiveByStudentAndPeriod(ctx context.Context, studentID, periodID string, statuses []models.EnrollmentStatus, excludeID string) (*models.EnrollmentRecord, error)
}

// CheckResult is the outcome of one validation stage. Reason is only set
// when Valid is false and becomes the record's rejection reason verbatim.
type CheckResult struct {
	Valid  bool
	Reason string
}

// ValidationPipeline runs the pre-confirmation checks for an enrollment
// record. Every check reads the database fresh: seats and sibling
// enrollments change between intake and processing, so state captured at
// intake time is never trusted.
type ValidationPipeline struct {
	sections    sectionDetailReader
	slots       slotReader
	enrollments blockingEnrollmentFinder
	blocking    []models.EnrollmentStatus
	logger      *zap.Logger
}

// NewValidationPipeline constructs ValidationPipeline. An empty blocking
// set falls back to models.BlockingStatuses.
func NewValidationPipeline(sections sectionDetailReader, slots slotReader, enrollments blockingEnrollmentFinder, blocking []models.EnrollmentStatus, logger *zap.Logger) *ValidationPipeline {
	if len(blocking) == 0 {
		blocking = models.BlockingStatuses
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationPipeline{sections: sections, slots: slots, enrollments: enrollments, blocking: blocking, logger: logger}
}

// Run executes the capacity, schedule and duplicate checks in that fixed
// order, stopping at the first failure. A non-nil error means a check
// could not run at all; deciding the record's fate is then the caller's
// problem.
func (p *ValidationPipeline) Run(ctx context.Context, record *models.EnrollmentRecord, sectionIDs []string) (CheckResult, error) {
	checks := []func(context.Context, *models.EnrollmentRecord, []string) (CheckResult, error){
		p.checkCapacity,
		p.checkSchedule,
		p.checkDuplicate,
	}
	for _, check := range checks {
		result, err := check(ctx, record, sectionIDs)
		if err != nil {
			return CheckResult{}, err
		}
		if !result.Valid {
			return result, nil
		}
	}
	return CheckResult{Valid: true}, nil
}

func (p *ValidationPipeline) checkCapacity(ctx context.Context, _ *models.EnrollmentRecord, sectionIDs []string) (CheckResult, error) {
	sections, err := p.sections.FindDetailsByIDs(ctx, sectionIDs)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load sections: %w", err)
	}
	found := make(map[string]bool, len(sections))
	for _, section := range sections {
		found[section.ID] = true
	}
	var missing []string
	for _, id := range sectionIDs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return CheckResult{Reason: "unknown sections: " + strings.Join(missing, ", ")}, nil
	}
	var full []string
	for i := range sections {
		if sections[i].SeatsLeft <= 0 {
			full = append(full, sections[i].DisplayName())
		}
	}
	if len(full) > 0 {
		return CheckResult{Reason: "no seats left in " + strings.Join(full, ", ")}, nil
	}
	return CheckResult{Valid: true}, nil
}

func (p *ValidationPipeline) checkSchedule(ctx context.Context, _ *models.EnrollmentRecord, sectionIDs []string) (CheckResult, error) {
	slots, err := p.slots.ListSlotsForSections(ctx, sectionIDs)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load meeting slots: %w", err)
	}
	if conflict := DetectConflict(slots); conflict != nil {
		return CheckResult{Reason: conflict.Message()}, nil
	}
	return CheckResult{Valid: true}, nil
}

func (p *ValidationPipeline) checkDuplicate(ctx context.Context, record *models.EnrollmentRecord, _ []string) (CheckResult, error) {
	existing, err := p.enrollments.FindActiveByStudentAndPeriod(ctx, record.StudentID, record.PeriodID, p.blocking, record.ID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("check sibling enrollments: %w", err)
	}
	if existing == nil {
		return CheckResult{Valid: true}, nil
	}
	if existing.Status == models.EnrollmentStatusConfirmed {
		return CheckResult{Reason: "student already has a confirmed enrollment in this period"}, nil
	}
	return CheckResult{Reason: "student already has a pending enrollment in this period"}, nil
}
