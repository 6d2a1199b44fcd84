package timeline

import "chronozoom/pkg/models"

// Supported year range. Negative years are before the common era.
const (
	MinYear = -13700000000
	MaxYear = 9999
)

// RootTimelineTitle names the root timeline of every new collection.
const RootTimelineTitle = "Cosmos"

// ValidateRange reports whether [from, to] is a legal range for a timeline
// placed under parent. A nil parent means a root timeline.
func ValidateRange(parent *models.Timeline, from, to float64) bool {
	if from > to {
		return false
	}
	if parent == nil {
		return true
	}
	return from >= parent.FromYear && to <= parent.ToYear
}

// encloses reports whether every child still fits in [from, to].
func encloses(children []models.Timeline, from, to float64) bool {
	for _, c := range children {
		if c.FromYear < from || c.ToYear > to {
			return false
		}
	}
	return true
}
