package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// ScheduleRepository reads meeting slots for conflict checks and exports.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListSlotsForSections returns every meeting slot of the given sections,
// joined with the owning section's display identity. Order is
// deterministic so conflict messages are stable.
func (r *ScheduleRepository) ListSlotsForSections(ctx context.Context, sectionIDs []string) ([]models.SectionSlot, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sectionIDs))
	args := make([]interface{}, len(sectionIDs))
	for i, id := range sectionIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT ms.section_id, s.label AS section_label, c.code AS course_code, c.name AS course_name,
        ms.weekday, ms.start_min, ms.end_min, ms.room
        FROM meeting_slots ms
        JOIN sections s ON s.id = ms.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE ms.section_id IN (%s)
        ORDER BY ms.weekday ASC, ms.start_min ASC, c.code ASC, s.label ASC`, strings.Join(placeholders, ","))

	var slots []models.SectionSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list section slots: %w", err)
	}
	return slots, nil
}

// ListConfirmedSlots returns the meeting slots of every section the
// student holds a CONFIRMED enrollment for in the period.
func (r *ScheduleRepository) ListConfirmedSlots(ctx context.Context, studentID, periodID string) ([]models.SectionSlot, error) {
	const query = `SELECT ms.section_id, s.label AS section_label, c.code AS course_code, c.name AS course_name,
        ms.weekday, ms.start_min, ms.end_min, ms.room
        FROM enrollment_records er
        JOIN enrollment_details ed ON ed.record_id = er.id
        JOIN sections s ON s.id = ed.section_id
        JOIN meeting_slots ms ON ms.section_id = s.id
        JOIN courses c ON c.id = s.course_id
        WHERE er.student_id = $1 AND er.period_id = $2 AND er.status = $3
        ORDER BY ms.weekday ASC, ms.start_min ASC`

	var slots []models.SectionSlot
	if err := r.db.SelectContext(ctx, &slots, query, studentID, periodID, models.EnrollmentStatusConfirmed); err != nil {
		return nil, fmt.Errorf("list confirmed slots: %w", err)
	}
	return slots, nil
}
