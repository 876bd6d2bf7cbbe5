package slots

import (
	"sort"
	"time"

	"clinicbook/internal/interval"
	"clinicbook/internal/models"
)

// DayInput carries everything the generator needs for one service on one
// day. Shifts must already be concrete (recurring templates expanded) and
// the rules already resolved (twin/continuation overrides applied by the
// caller). Now is the reference instant for the lead-time rule; the
// generator never reads the system clock.
type DayInput struct {
	Day         time.Time
	LocationID  int64
	Rules       models.ServiceRules
	Shifts      []models.Shift
	Blackouts   []models.BlackoutPeriod
	Bookings    []models.Booking
	Breaks      []models.Break
	Now         time.Time
	StepMinutes int // 0 means step by the service duration
}

// GenerateSlotsForDay walks each qualifying shift in a fixed step and
// emits candidate slots that survive the lead-time, blackout, break and
// booking-plus-buffer rules. Invalid shifts (inactive, wrong location,
// outside the day) are filtered, never raised as errors. Output order is
// per shift; callers sort before presenting.
func GenerateSlotsForDay(in DayInput) []models.Slot {
	if in.Rules.DurationMinutes <= 0 {
		return nil
	}

	duration := time.Duration(in.Rules.DurationMinutes) * time.Minute
	buffer := time.Duration(in.Rules.BufferMinutes) * time.Minute
	step := duration
	if in.StepMinutes > 0 {
		step = time.Duration(in.StepMinutes) * time.Minute
	}
	earliest := in.Now.Add(time.Duration(in.Rules.LeadTimeMinutes) * time.Minute)

	dayStart := time.Date(in.Day.Year(), in.Day.Month(), in.Day.Day(), 0, 0, 0, 0, in.Day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	dayWindow := models.TimeInterval{Start: dayStart, End: dayEnd}

	blackouts := applicableBlackouts(in.Blackouts, in.LocationID)
	breaksByShift := groupBreaks(in.Breaks)
	bookingsByShift := groupBookings(in.Bookings)

	var out []models.Slot
	for i := range in.Shifts {
		sh := &in.Shifts[i]
		if !sh.IsActive || sh.LocationID != in.LocationID {
			continue
		}
		if !interval.Overlaps(sh.Window(), dayWindow) {
			continue
		}

		winStart := sh.StartTime
		if winStart.Before(dayStart) {
			winStart = dayStart
		}
		winEnd := sh.EndTime
		if winEnd.After(dayEnd) {
			winEnd = dayEnd
		}

		for cur := winStart; !cur.Add(duration).After(winEnd); cur = cur.Add(step) {
			// Lead-time boundary: a start at exactly now+lead is bookable.
			if cur.Before(earliest) {
				continue
			}

			slot := models.TimeInterval{Start: cur, End: cur.Add(duration)}
			if interval.OverlapsAny(slot, blackouts) {
				continue
			}
			if interval.OverlapsAny(slot, breaksByShift[sh.ID]) {
				continue
			}

			// Buffer enforces turnaround after the appointment, not before.
			occupied := models.TimeInterval{Start: cur, End: cur.Add(duration + buffer)}
			if interval.OverlapsAny(occupied, bookingsByShift[sh.ID]) {
				continue
			}

			out = append(out, models.Slot{
				ShiftID:   sh.ID,
				StaffID:   sh.StaffID,
				StartTime: slot.Start,
				EndTime:   slot.End,
			})
		}
	}
	return out
}

// FilterByLocks removes slots overlapping any of the given lock spans.
// Callers pass only non-expired locks. The result is a new slice; the
// cached raw slot list is never perturbed.
func FilterByLocks(slots []models.Slot, locks []models.TimeInterval) []models.Slot {
	if len(locks) == 0 {
		return slots
	}
	out := make([]models.Slot, 0, len(slots))
	for _, s := range slots {
		if interval.OverlapsAny(s.Interval(), locks) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SortByStart orders slots chronologically, breaking ties by shift id so
// overlapping slots from different staff have a stable order.
func SortByStart(slots []models.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].ShiftID < slots[j].ShiftID
		}
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}

func applicableBlackouts(blackouts []models.BlackoutPeriod, locationID int64) []models.TimeInterval {
	var spans []models.TimeInterval
	for i := range blackouts {
		bp := &blackouts[i]
		if bp.LocationID != nil && *bp.LocationID != locationID {
			continue
		}
		spans = append(spans, bp.Interval())
	}
	return spans
}

func groupBreaks(breaks []models.Break) map[int64][]models.TimeInterval {
	grouped := make(map[int64][]models.TimeInterval, len(breaks))
	for i := range breaks {
		b := &breaks[i]
		grouped[b.ShiftID] = append(grouped[b.ShiftID], b.Interval())
	}
	return grouped
}

func groupBookings(bookings []models.Booking) map[int64][]models.TimeInterval {
	grouped := make(map[int64][]models.TimeInterval, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		if b.Status == models.StatusCancelled || b.Status == models.StatusRejected {
			continue
		}
		grouped[b.ShiftID] = append(grouped[b.ShiftID], b.Interval())
	}
	return grouped
}
