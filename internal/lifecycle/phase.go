// Package lifecycle classifies challenges into temporal phases and renders
// the human-readable countdown labels shown next to them.
package lifecycle

import (
	"time"

	"github.com/terra-clan/motify-engine/internal/models"
)

// Classify returns the phase of a challenge window at the given instant.
//
// The window is half-open: a challenge is active from start (inclusive) to
// end (exclusive). For a malformed window (end <= start) the upcoming check
// wins before start and the completed check wins from end onwards.
func Classify(start, end, now time.Time) models.Phase {
	switch {
	case now.Before(start):
		return models.PhaseUpcoming
	case !now.Before(end):
		return models.PhaseCompleted
	default:
		return models.PhaseActive
	}
}

// IsUpcoming reports whether now is before start
func IsUpcoming(start, end, now time.Time) bool {
	return Classify(start, end, now) == models.PhaseUpcoming
}

// IsActive reports whether start <= now < end
func IsActive(start, end, now time.Time) bool {
	return Classify(start, end, now) == models.PhaseActive
}

// IsCompleted reports whether now >= end
func IsCompleted(start, end, now time.Time) bool {
	return Classify(start, end, now) == models.PhaseCompleted
}

// PhaseOf classifies a challenge record
func PhaseOf(c *models.Challenge, now time.Time) models.Phase {
	return Classify(c.StartTime, c.EndTime, now)
}
