package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/repository"
	"github.com/noah-isme/uni-enroll-api/pkg/pool"
)

// genericRejectionReason is stored when processing fails for a reason the
// student cannot act on. The underlying cause goes to the log, not the record.
const genericRejectionReason = "enrollment could not be processed"

type processingRepository interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error)
	ListSectionIDs(ctx context.Context, recordID string) ([]string, error)
	Confirm(ctx context.Context, recordID string) (repository.ConfirmResult, error)
	Reject(ctx context.Context, recordID string, reason string) (bool, error)
}

// Processor drives one enrollment record from PENDING to a terminal
// status. It is the pool's task handler: validation first, then the
// confirmation transaction. Any failure that is not a validation verdict
// still ends in REJECTED with a generic reason, so a record that reached
// a worker never stays PENDING unless the worker itself dies.
type Processor struct {
	enrollments processingRepository
	pipeline    *ValidationPipeline
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewProcessor constructs Processor.
func NewProcessor(enrollments processingRepository, pipeline *ValidationPipeline, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{enrollments: enrollments, pipeline: pipeline, cache: cache, metrics: metrics, logger: logger}
}

// Handle processes a single queued task. The returned error means the
// record may have been left non-terminal; every other path, including
// recovered panics, ends with the record CONFIRMED or REJECTED.
func (p *Processor) Handle(ctx context.Context, task pool.Task) (err error) {
	recordID := task.ID
	var requestedAt time.Time

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing enrollment",
				zap.String("record_id", recordID), zap.Any("panic", r))
			err = p.failGeneric(ctx, recordID, requestedAt, fmt.Errorf("panic: %v", r))
		}
	}()

	record, err := p.enrollments.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			p.logger.Warn("enrollment record missing, dropping task", zap.String("record_id", recordID))
			return nil
		}
		return p.failGeneric(ctx, recordID, requestedAt, fmt.Errorf("load record: %w", err))
	}
	if record.Status.Terminal() {
		p.logger.Debug("record already terminal",
			zap.String("record_id", recordID), zap.String("status", string(record.Status)))
		return nil
	}
	requestedAt = record.RequestedAt

	sectionIDs, err := p.enrollments.ListSectionIDs(ctx, recordID)
	if err != nil {
		return p.failGeneric(ctx, recordID, requestedAt, fmt.Errorf("load enrollment details: %w", err))
	}

	result, err := p.pipeline.Run(ctx, record, sectionIDs)
	if err != nil {
		return p.failGeneric(ctx, recordID, requestedAt, fmt.Errorf("run validation: %w", err))
	}
	if !result.Valid {
		return p.reject(ctx, record, result.Reason)
	}

	outcome, err := p.enrollments.Confirm(ctx, recordID)
	if err != nil {
		var exhausted *repository.SeatsExhaustedError
		if errors.As(err, &exhausted) {
			// Seats ran out between the capacity check and the locked
			// re-read. The recheck under lock is authoritative.
			return p.reject(ctx, record, exhausted.Error())
		}
		return p.failGeneric(ctx, recordID, requestedAt, fmt.Errorf("confirm enrollment: %w", err))
	}

	switch outcome {
	case repository.ConfirmApplied:
		p.metrics.RecordEnrollmentOutcome(OutcomeConfirmed, time.Since(requestedAt))
		p.invalidateCatalog(ctx)
		p.logger.Info("enrollment confirmed",
			zap.String("record_id", recordID), zap.Int("sections", len(sectionIDs)))
	case repository.ConfirmRecordMissing:
		p.logger.Warn("enrollment record vanished before confirmation", zap.String("record_id", recordID))
	case repository.ConfirmRecordTerminal:
		p.logger.Debug("record terminalized by another actor", zap.String("record_id", recordID))
	}
	return nil
}

func (p *Processor) reject(ctx context.Context, record *models.EnrollmentRecord, reason string) error {
	applied, err := p.enrollments.Reject(ctx, record.ID, reason)
	if err != nil {
		return fmt.Errorf("reject enrollment %s: %w", record.ID, err)
	}
	if !applied {
		p.logger.Debug("reject skipped, record no longer pending", zap.String("record_id", record.ID))
		return nil
	}
	p.metrics.RecordEnrollmentOutcome(OutcomeRejected, time.Since(record.RequestedAt))
	p.logger.Info("enrollment rejected",
		zap.String("record_id", record.ID), zap.String("reason", reason))
	return nil
}

func (p *Processor) failGeneric(ctx context.Context, recordID string, requestedAt time.Time, cause error) error {
	p.logger.Error("enrollment processing failed",
		zap.String("record_id", recordID), zap.Error(cause))
	applied, rejectErr := p.enrollments.Reject(ctx, recordID, genericRejectionReason)
	if rejectErr != nil {
		return fmt.Errorf("process enrollment %s: %v (reject also failed: %w)", recordID, cause, rejectErr)
	}
	if applied {
		var inFlight time.Duration
		if !requestedAt.IsZero() {
			inFlight = time.Since(requestedAt)
		}
		p.metrics.RecordEnrollmentOutcome(OutcomeRejected, inFlight)
	}
	return nil
}

func (p *Processor) invalidateCatalog(ctx context.Context) {
	if p.cache == nil {
		return
	}
	// Failures are logged inside the cache service.
	_ = p.cache.InvalidateSections(ctx)
}
