package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment record.
type EnrollmentStatus string

// A record is created PENDING and transitions exactly once, to either
// CONFIRMED or REJECTED. Both are terminal.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusConfirmed EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
)

// Terminal reports whether no further status transition is permitted.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusConfirmed || s == EnrollmentStatusRejected
}

// BlockingStatuses is the canonical set of statuses that make a
// (student, period) pair count as already enrolled for duplicate checks.
// A CONFIRMED-only check existed historically; callers wanting it pass
// their own set.
var BlockingStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusConfirmed,
}

// EnrollmentRecord tracks one enrollment request through to its terminal
// state. RejectionReason is set iff status is REJECTED; ProcessedAt is set
// iff status is terminal.
type EnrollmentRecord struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	PeriodID        string           `db:"period_id" json:"period_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	Online          bool             `db:"online" json:"online"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RequestedAt     time.Time        `db:"requested_at" json:"requested_at"`
	ProcessedAt     *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
}

// EnrollmentDetail links a record to one of its target sections. A record
// never lists the same section twice.
type EnrollmentDetail struct {
	ID        string `db:"id" json:"id"`
	RecordID  string `db:"record_id" json:"record_id"`
	SectionID string `db:"section_id" json:"section_id"`
}

// EnrollmentItem is a record joined with its period label and target
// sections, as returned by the query surface.
type EnrollmentItem struct {
	EnrollmentRecord
	PeriodCode string          `db:"period_code" json:"period_code"`
	PeriodName string          `db:"period_name" json:"period_name"`
	Sections   []SectionDetail `db:"-" json:"sections"`
}
