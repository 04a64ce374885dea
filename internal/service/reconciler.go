package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/stream"
)

const reconcileBatchSize = 100

type stalePendingLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.EnrollmentRecord, error)
	ListSectionIDs(ctx context.Context, recordID string) ([]string, error)
}

// Reconciler republishes request events for records stuck PENDING longer
// than the staleness threshold. Two gaps feed it: a publish that failed
// after the intake insert committed, and a worker that died after the
// stream message was acknowledged. Re-processing a record that was merely
// slow is harmless since terminal records no-op.
type Reconciler struct {
	enrollments stalePendingLister
	publisher   eventPublisher
	metrics     *MetricsService
	logger      *zap.Logger
	every       time.Duration
	staleAfter  time.Duration
}

// NewReconciler constructs Reconciler. Non-positive intervals fall back
// to one minute between sweeps and two minutes of staleness.
func NewReconciler(enrollments stalePendingLister, publisher eventPublisher, metrics *MetricsService, logger *zap.Logger, every, staleAfter time.Duration) *Reconciler {
	if every <= 0 {
		every = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		enrollments: enrollments,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		every:       every,
		staleAfter:  staleAfter,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconcile sweep failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("republished stale pending enrollments", zap.Int("count", n))
			}
		}
	}
}

// Sweep republishes one batch of stale PENDING records and returns how
// many events went out. Per-record failures are logged and skipped so one
// bad record cannot starve the rest of the batch.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	records, err := r.enrollments.ListStalePending(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range records {
		record := &records[i]
		sectionIDs, err := r.enrollments.ListSectionIDs(ctx, record.ID)
		if err != nil {
			r.logger.Warn("skipping stale record, details unavailable",
				zap.String("record_id", record.ID), zap.Error(err))
			continue
		}
		event := stream.Event{
			RecordID:    record.ID,
			StudentID:   record.StudentID,
			PeriodID:    record.PeriodID,
			SectionIDs:  sectionIDs,
			Online:      record.Online,
			RequestedAt: record.RequestedAt,
		}
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.metrics.RecordEventPublish(false)
			r.logger.Warn("republish failed",
				zap.String("record_id", record.ID), zap.Error(err))
			continue
		}
		r.metrics.RecordEventPublish(true)
		published++
	}
	return published, nil
}
