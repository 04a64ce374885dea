package dto

import (
	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// CreateEnrollmentRequest is the payload for submitting an enrollment.
// The target period is always the active one, so it is not part of the
// payload. SectionIDs must be non-empty and free of duplicates.
type CreateEnrollmentRequest struct {
	StudentID  string   `json:"student_id" validate:"required"`
	SectionIDs []string `json:"section_ids" validate:"required,min=1,unique,dive,required"`
	Online     bool     `json:"online"`
}

// EnrollmentListRequest captures query parameters for listing a
// student's enrollments.
type EnrollmentListRequest struct {
	PeriodID  string
	Status    *models.EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
