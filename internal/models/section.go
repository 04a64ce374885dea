package models

import "time"

// Section is a scheduled offering of a course with a fixed seat capacity.
// SeatsLeft is the one piece of state mutated by concurrent confirmation
// transactions; it is only ever decremented under a row lock.
type Section struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	PeriodID   string    `db:"period_id" json:"period_id"`
	Label      string    `db:"label" json:"label"`
	SeatsTotal int       `db:"seats_total" json:"seats_total"`
	SeatsLeft  int       `db:"seats_left" json:"seats_left"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with course display info for catalog and
// enrollment responses.
type SectionDetail struct {
	Section
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// DisplayName renders the section the way rejection reasons and catalog
// rows refer to it, e.g. "MATH-101 (A)".
func (s *SectionDetail) DisplayName() string {
	if s.CourseCode == "" {
		return s.Label
	}
	return s.CourseCode + " (" + s.Label + ")"
}

// Course identifies the subject a section belongs to.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SectionFilter defines filters for the catalog listing.
type SectionFilter struct {
	PeriodID      string
	CourseID      string
	OnlyAvailable bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
