package service

import (
	"fmt"
	"sort"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// SlotConflict names the first pair of overlapping meeting slots found.
type SlotConflict struct {
	First  models.SectionSlot
	Second models.SectionSlot
}

// Message renders the conflict the way it appears as a rejection reason.
func (c *SlotConflict) Message() string {
	return fmt.Sprintf("%s overlaps %s", c.First.Describe(), c.Second.Describe())
}

// DetectConflict scans the slots of a prospective enrollment for a time
// collision. Slots are grouped per weekday and days scanned in ascending
// order; within a day every pair is compared in input order, so the
// returned conflict is deterministic for a given input. Two slots of the
// same section never conflict with each other. Intervals are half-open:
// back-to-back slots (one ending exactly when the next starts) do not
// overlap.
func DetectConflict(slots []models.SectionSlot) *SlotConflict {
	byDay := make(map[int][]models.SectionSlot)
	var days []int
	for _, slot := range slots {
		if _, seen := byDay[slot.Weekday]; !seen {
			days = append(days, slot.Weekday)
		}
		byDay[slot.Weekday] = append(byDay[slot.Weekday], slot)
	}
	sort.Ints(days)

	for _, day := range days {
		daySlots := byDay[day]
		for i := 0; i < len(daySlots); i++ {
			for j := i + 1; j < len(daySlots); j++ {
				first, second := daySlots[i], daySlots[j]
				if first.SectionID == second.SectionID {
					continue
				}
				if first.StartMin < second.EndMin && second.StartMin < first.EndMin {
					return &SlotConflict{First: first, Second: second}
				}
			}
		}
	}
	return nil
}
