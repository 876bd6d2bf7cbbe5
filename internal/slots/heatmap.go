package slots

import (
	"time"

	"clinicbook/internal/models"
)

// DateKey formats a day as the YYYY-MM-DD key used by per-day slot maps.
func DateKey(day time.Time) string {
	return day.Format("2006-01-02")
}

// SummarizeDayHeatmap turns per-day slot lists into day-level counts for
// calendar display. One entry is emitted per input day, in input order;
// days with no slot list get a zero count. No filtering happens here —
// the slot lists are trusted as the caller's chosen view.
func SummarizeDayHeatmap(days []time.Time, perDaySlots map[string][]models.Slot) []models.DayHeatmapEntry {
	entries := make([]models.DayHeatmapEntry, 0, len(days))
	for _, d := range days {
		key := DateKey(d)
		entries = append(entries, models.DayHeatmapEntry{
			Date:           key,
			AvailableSlots: len(perDaySlots[key]),
		})
	}
	return entries
}
