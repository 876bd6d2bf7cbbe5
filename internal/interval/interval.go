package interval

import "clinicbook/internal/models"

// Overlaps reports whether two half-open intervals [a.Start, a.End) and
// [b.Start, b.End) overlap. Intervals that only touch at a boundary do
// not overlap.
func Overlaps(a, b models.TimeInterval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// FullyContained reports whether inner lies entirely within outer.
func FullyContained(inner, outer models.TimeInterval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// OverlapsAny reports whether iv overlaps at least one of the given spans.
func OverlapsAny(iv models.TimeInterval, spans []models.TimeInterval) bool {
	for _, s := range spans {
		if Overlaps(iv, s) {
			return true
		}
	}
	return false
}
