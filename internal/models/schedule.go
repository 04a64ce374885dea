package models

import (
	"fmt"
	"time"
)

// Weekday numbering follows ISO 8601: 1 = Monday .. 7 = Sunday.
var weekdayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

// WeekdayName returns the English name for an ISO weekday number.
func WeekdayName(weekday int) string {
	if name, ok := weekdayNames[weekday]; ok {
		return name
	}
	return fmt.Sprintf("day-%d", weekday)
}

// FormatMinutes renders minutes-from-midnight as HH:MM.
func FormatMinutes(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// MeetingSlot is a weekly recurring time block at which a section meets.
// Times are stored as minutes from midnight and treated as the half-open
// interval [StartMin, EndMin).
type MeetingSlot struct {
	ID        string    `db:"id" json:"id"`
	SectionID string    `db:"section_id" json:"section_id"`
	Weekday   int       `db:"weekday" json:"weekday"`
	StartMin  int       `db:"start_min" json:"start_min"`
	EndMin    int       `db:"end_min" json:"end_min"`
	Room      string    `db:"room" json:"room"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SectionSlot is a meeting slot joined with the owning section's display
// identity, as consumed by the conflict detector and schedule exports.
type SectionSlot struct {
	SectionID    string `db:"section_id" json:"section_id"`
	SectionLabel string `db:"section_label" json:"section_label"`
	CourseCode   string `db:"course_code" json:"course_code"`
	CourseName   string `db:"course_name" json:"course_name"`
	Weekday      int    `db:"weekday" json:"weekday"`
	StartMin     int    `db:"start_min" json:"start_min"`
	EndMin       int    `db:"end_min" json:"end_min"`
	Room         string `db:"room" json:"room"`
}

// Describe renders the slot for human-readable conflict messages,
// e.g. "MATH-101 (A) Monday 10:00-11:00".
func (s SectionSlot) Describe() string {
	return fmt.Sprintf("%s (%s) %s %s-%s",
		s.CourseCode, s.SectionLabel, WeekdayName(s.Weekday),
		FormatMinutes(s.StartMin), FormatMinutes(s.EndMin))
}
