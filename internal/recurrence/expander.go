package recurrence

import (
	"strconv"
	"strings"
	"time"

	"clinicbook/internal/models"
)

// Expander turns recurring shift templates into concrete shift instances
// intersecting a range. Concrete shifts pass through unchanged; exception
// instances override or cancel single occurrences of their parent. The
// availability engine depends on this contract only, never on rule
// internals.
type Expander interface {
	Expand(shifts []models.Shift, from, to time.Time) []models.Shift
}

// WeeklyExpander expands rules of the form "WEEKLY" (every week) or
// "WEEKLY:n" (every n weeks), anchored at the template's start time.
type WeeklyExpander struct{}

// NewWeeklyExpander constructs the default expander.
func NewWeeklyExpander() *WeeklyExpander {
	return &WeeklyExpander{}
}

// Expand returns concrete shift instances whose windows intersect
// [from, to). Cancelled exception instances suppress their occurrence;
// overriding exceptions replace it with their own window.
func (e *WeeklyExpander) Expand(shifts []models.Shift, from, to time.Time) []models.Shift {
	exceptions := make(map[int64]map[string]*models.Shift)
	for i := range shifts {
		sh := &shifts[i]
		if sh.ParentShiftID == 0 || sh.ExceptionDate == nil {
			continue
		}
		key := sh.ExceptionDate.Format("2006-01-02")
		if exceptions[sh.ParentShiftID] == nil {
			exceptions[sh.ParentShiftID] = make(map[string]*models.Shift)
		}
		exceptions[sh.ParentShiftID][key] = sh
	}

	var out []models.Shift
	for i := range shifts {
		sh := shifts[i]
		switch {
		case sh.ParentShiftID != 0 && sh.ExceptionDate != nil:
			if !sh.Cancelled && overlapsRange(&sh, from, to) {
				out = append(out, sh)
			}
		case sh.IsRecurring:
			out = append(out, e.occurrences(sh, exceptions[sh.ID], from, to)...)
		default:
			if !sh.Cancelled && overlapsRange(&sh, from, to) {
				out = append(out, sh)
			}
		}
	}
	return out
}

func (e *WeeklyExpander) occurrences(template models.Shift, exceptions map[string]*models.Shift, from, to time.Time) []models.Shift {
	interval := parseWeeklyInterval(template.RecurrenceRule)
	if interval <= 0 {
		return nil
	}
	step := time.Duration(interval) * 7 * 24 * time.Hour
	length := template.EndTime.Sub(template.StartTime)
	if length <= 0 {
		return nil
	}

	start := template.StartTime
	// Jump near the range instead of stepping week by week from the
	// anchor; the guard below discards the one occurrence this can land
	// before the range.
	if delta := from.Sub(start) - length; delta > 0 {
		start = start.Add(delta / step * step)
	}

	var out []models.Shift
	for ; start.Before(to); start = start.Add(step) {
		end := start.Add(length)
		if !end.After(from) {
			continue
		}
		if _, overridden := exceptions[start.Format("2006-01-02")]; overridden {
			// The exception instance is emitted by Expand itself.
			continue
		}
		inst := template
		inst.StartTime = start
		inst.EndTime = end
		inst.IsRecurring = false
		inst.ParentShiftID = template.ID
		out = append(out, inst)
	}
	return out
}

func parseWeeklyInterval(rule string) int {
	rule = strings.TrimSpace(strings.ToUpper(rule))
	if rule == "WEEKLY" {
		return 1
	}
	if rest, ok := strings.CutPrefix(rule, "WEEKLY:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return 0
		}
		return n
	}
	return 0
}

func overlapsRange(sh *models.Shift, from, to time.Time) bool {
	return sh.StartTime.Before(to) && from.Before(sh.EndTime)
}
