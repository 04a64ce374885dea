package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// EnrollmentRepository persists enrollment records and applies their
// terminal transitions.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ConfirmResult reports the outcome of a confirmation attempt.
type ConfirmResult int

const (
	// ConfirmFailed accompanies a non-nil error; nothing was applied.
	ConfirmFailed ConfirmResult = iota
	// ConfirmApplied means seats were decremented and the record confirmed.
	ConfirmApplied
	// ConfirmRecordMissing means no record exists for the id.
	ConfirmRecordMissing
	// ConfirmRecordTerminal means the record was already CONFIRMED or REJECTED.
	ConfirmRecordTerminal
)

// SeatsExhaustedError reports the sections that had no seats left when the
// confirmation transaction re-checked them under lock.
type SeatsExhaustedError struct {
	Sections []string
}

func (e *SeatsExhaustedError) Error() string {
	return "no seats left in " + strings.Join(e.Sections, ", ")
}

// CreateWithDetails inserts a PENDING record and one detail row per target
// section in a single transaction.
func (r *EnrollmentRepository) CreateWithDetails(ctx context.Context, record *models.EnrollmentRecord, sectionIDs []string) (err error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.EnrollmentStatusPending
	}
	if record.RequestedAt.IsZero() {
		record.RequestedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRecord = `INSERT INTO enrollment_records (id, student_id, period_id, status, online, rejection_reason, requested_at, processed_at)
        VALUES (:id, :student_id, :period_id, :status, :online, :rejection_reason, :requested_at, :processed_at)`
	if _, err = tx.NamedExecContext(ctx, insertRecord, record); err != nil {
		return fmt.Errorf("insert enrollment record: %w", err)
	}

	const insertDetail = `INSERT INTO enrollment_details (id, record_id, section_id) VALUES ($1, $2, $3)`
	for _, sectionID := range sectionIDs {
		if _, err = tx.ExecContext(ctx, insertDetail, uuid.NewString(), record.ID, sectionID); err != nil {
			return fmt.Errorf("insert enrollment detail: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// FindByID returns an enrollment record by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error) {
	const query = `SELECT id, student_id, period_id, status, online, rejection_reason, requested_at, processed_at FROM enrollment_records WHERE id = $1`
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindItemByID returns a record joined with its period labels. Target
// sections are attached separately.
func (r *EnrollmentRepository) FindItemByID(ctx context.Context, id string) (*models.EnrollmentItem, error) {
	const query = `SELECT er.id, er.student_id, er.period_id, er.status, er.online, er.rejection_reason, er.requested_at, er.processed_at,
        p.code AS period_code, p.name AS period_name
        FROM enrollment_records er
        JOIN periods p ON p.id = er.period_id
        WHERE er.id = $1`
	var item models.EnrollmentItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListSectionIDs returns the target section ids of a record in ascending
// order. The order feeds lock acquisition during confirmation.
func (r *EnrollmentRepository) ListSectionIDs(ctx context.Context, recordID string) ([]string, error) {
	const query = `SELECT section_id FROM enrollment_details WHERE record_id = $1 ORDER BY section_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, recordID); err != nil {
		return nil, fmt.Errorf("list enrollment sections: %w", err)
	}
	return ids, nil
}

// ListDetailSectionsByRecordIDs loads the target sections of the given
// records, joined with course info, grouped by record id.
func (r *EnrollmentRepository) ListDetailSectionsByRecordIDs(ctx context.Context, recordIDs []string) (map[string][]models.SectionDetail, error) {
	grouped := make(map[string][]models.SectionDetail, len(recordIDs))
	if len(recordIDs) == 0 {
		return grouped, nil
	}
	placeholders := make([]string, len(recordIDs))
	args := make([]interface{}, len(recordIDs))
	for i, id := range recordIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT ed.record_id, s.id, s.course_id, s.period_id, s.label, s.seats_total, s.seats_left, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.teacher_name AS teacher_name
        FROM enrollment_details ed
        JOIN sections s ON s.id = ed.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE ed.record_id IN (%s)
        ORDER BY c.code ASC, s.label ASC`, strings.Join(placeholders, ","))

	var rows []struct {
		RecordID string `db:"record_id"`
		models.SectionDetail
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollment detail sections: %w", err)
	}
	for _, row := range rows {
		grouped[row.RecordID] = append(grouped[row.RecordID], row.SectionDetail)
	}
	return grouped, nil
}

// FindActiveByStudentAndPeriod returns the first record blocking a new
// enrollment for the (student, period) pair, or nil when none exists.
// The blocking-status set is configurable; an empty set means the
// canonical one. excludeID skips the record currently being processed.
func (r *EnrollmentRepository) FindActiveByStudentAndPeriod(ctx context.Context, studentID, periodID string, statuses []models.EnrollmentStatus, excludeID string) (*models.EnrollmentRecord, error) {
	if len(statuses) == 0 {
		statuses = models.BlockingStatuses
	}
	args := []interface{}{studentID, periodID}
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`SELECT id, student_id, period_id, status, online, rejection_reason, requested_at, processed_at
        FROM enrollment_records
        WHERE student_id = $1 AND period_id = $2 AND status IN (%s)`, strings.Join(placeholders, ","))
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += " ORDER BY requested_at ASC LIMIT 1"

	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find blocking enrollment: %w", err)
	}
	return &record, nil
}

// ListStalePending returns PENDING records requested before the cutoff,
// oldest first. These are records whose request event was never consumed,
// either because the publish failed or because a worker died after the
// message was acknowledged.
func (r *EnrollmentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.EnrollmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, student_id, period_id, status, online, rejection_reason, requested_at, processed_at
        FROM enrollment_records
        WHERE status = $1 AND requested_at < $2
        ORDER BY requested_at ASC
        LIMIT $3`
	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query, models.EnrollmentStatusPending, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list stale pending enrollments: %w", err)
	}
	return records, nil
}

// ListByStudent returns a student's enrollment records joined with period
// labels, newest first by default.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string, filter dto.EnrollmentListRequest) ([]models.EnrollmentItem, int, error) {
	base := `FROM enrollment_records er
JOIN periods p ON p.id = er.period_id`
	conditions := []string{"er.student_id = $1"}
	args := []interface{}{studentID}

	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("er.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("er.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"requested_at": "er.requested_at",
		"processed_at": "er.processed_at",
		"status":       "er.status",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "requested_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "er.requested_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT er.id, er.student_id, er.period_id, er.status, er.online, er.rejection_reason, er.requested_at, er.processed_at,
        p.code AS period_code, p.name AS period_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var items []models.EnrollmentItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list student enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count student enrollments: %w", err)
	}
	return items, total, nil
}

// Confirm atomically decrements one seat in every target section of the
// record and marks it CONFIRMED. The record row is locked first, then the
// sections one at a time in ascending id order, so two confirmations
// touching overlapping sections queue in the same order instead of
// deadlocking. Seats are re-read under lock; if any section is out of
// seats the whole transaction rolls back and a SeatsExhaustedError names
// the full sections.
func (r *EnrollmentRepository) Confirm(ctx context.Context, recordID string) (result ConfirmResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return ConfirmFailed, fmt.Errorf("begin confirm tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		Status models.EnrollmentStatus `db:"status"`
	}
	const lockRecord = `SELECT status FROM enrollment_records WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockRecord, recordID); err != nil {
		if err == sql.ErrNoRows {
			return ConfirmRecordMissing, nil
		}
		return ConfirmFailed, fmt.Errorf("lock enrollment record: %w", err)
	}
	if current.Status.Terminal() {
		return ConfirmRecordTerminal, nil
	}

	var sectionIDs []string
	const detailQuery = `SELECT section_id FROM enrollment_details WHERE record_id = $1 ORDER BY section_id ASC`
	if err = tx.SelectContext(ctx, &sectionIDs, detailQuery, recordID); err != nil {
		return ConfirmFailed, fmt.Errorf("load target sections: %w", err)
	}

	const lockSection = `SELECT s.id, s.label, s.seats_left,
        (SELECT code FROM courses c WHERE c.id = s.course_id) AS course_code
        FROM sections s WHERE s.id = $1 FOR UPDATE`
	var exhausted []string
	for _, sectionID := range sectionIDs {
		var section struct {
			ID         string `db:"id"`
			Label      string `db:"label"`
			SeatsLeft  int    `db:"seats_left"`
			CourseCode string `db:"course_code"`
		}
		if err = tx.GetContext(ctx, &section, lockSection, sectionID); err != nil {
			return ConfirmFailed, fmt.Errorf("lock section %s: %w", sectionID, err)
		}
		if section.SeatsLeft <= 0 {
			exhausted = append(exhausted, fmt.Sprintf("%s (%s)", section.CourseCode, section.Label))
		}
	}
	if len(exhausted) > 0 {
		err = &SeatsExhaustedError{Sections: exhausted}
		return ConfirmFailed, err
	}

	now := time.Now().UTC()
	const decrement = `UPDATE sections SET seats_left = seats_left - 1, updated_at = $2 WHERE id = $1`
	for _, sectionID := range sectionIDs {
		if _, err = tx.ExecContext(ctx, decrement, sectionID, now); err != nil {
			return ConfirmFailed, fmt.Errorf("decrement seats for %s: %w", sectionID, err)
		}
	}

	const confirmRecord = `UPDATE enrollment_records SET status = $2, processed_at = $3, rejection_reason = NULL WHERE id = $1`
	if _, err = tx.ExecContext(ctx, confirmRecord, recordID, models.EnrollmentStatusConfirmed, now); err != nil {
		return ConfirmFailed, fmt.Errorf("confirm enrollment record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return ConfirmFailed, fmt.Errorf("commit confirm tx: %w", err)
	}
	committed = true
	return ConfirmApplied, nil
}

// Reject marks a PENDING record REJECTED with the given reason. Returns
// false when the record was missing or already terminal; terminal records
// are never overwritten.
func (r *EnrollmentRepository) Reject(ctx context.Context, recordID, reason string) (bool, error) {
	const query = `UPDATE enrollment_records SET status = $2, rejection_reason = $3, processed_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, recordID, models.EnrollmentStatusRejected, reason, time.Now().UTC(), models.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("reject enrollment record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject enrollment record: %w", err)
	}
	return affected > 0, nil
}
