package dto

// ActivatePeriodRequest toggles which enrollment period is active.
type ActivatePeriodRequest struct {
	IsActive bool `json:"is_active"`
}

// ScheduleExportRequest captures query parameters for the timetable export.
type ScheduleExportRequest struct {
	PeriodID string `form:"periodId" validate:"required"`
	Format   string `form:"format" validate:"omitempty,oneof=pdf csv"`
}
