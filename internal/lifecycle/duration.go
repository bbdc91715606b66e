package lifecycle

import (
	"fmt"
	"time"

	"github.com/terra-clan/motify-engine/internal/models"
)

const day = 24 * time.Hour

// CompletedLabel is rendered for challenges past their end instant
const CompletedLabel = "Completed"

// UnderMinuteLabel is the list fallback for spans shorter than a minute
const UnderMinuteLabel = "< 1h"

// TimeRemaining renders the detail-page countdown: "Starts in 3 days",
// "5 hours left" or "Completed". Units are ceiled, so a few seconds before
// a boundary still reads "1 minute".
func TimeRemaining(start, end, now time.Time) string {
	switch Classify(start, end, now) {
	case models.PhaseUpcoming:
		return "Starts in " + ceilSpan(start.Sub(now))
	case models.PhaseCompleted:
		return CompletedLabel
	default:
		return ceilSpan(end.Sub(now)) + " left"
	}
}

// DurationLabel renders the short label used in challenge lists. Upcoming
// challenges show their full length, active ones what is left.
func DurationLabel(start, end, now time.Time) string {
	switch Classify(start, end, now) {
	case models.PhaseUpcoming:
		return ListDuration(end.Sub(start))
	case models.PhaseCompleted:
		return CompletedLabel
	default:
		return ListDuration(end.Sub(now))
	}
}

// ListDuration renders a duration for list displays. Unlike TimeRemaining it
// floors each unit and falls back to "< 1h" below one minute.
func ListDuration(d time.Duration) string {
	if days := int64(d / day); days > 1 {
		return plural(days, "day")
	}
	if hours := int64(d / time.Hour); hours > 1 {
		return plural(hours, "hour")
	}
	if minutes := int64(d / time.Minute); minutes >= 1 {
		return plural(minutes, "minute")
	}
	return UnderMinuteLabel
}

func ceilSpan(d time.Duration) string {
	if days := ceilDiv(d, day); days > 1 {
		return plural(days, "day")
	}
	if hours := ceilDiv(d, time.Hour); hours > 1 {
		return plural(hours, "hour")
	}
	minutes := ceilDiv(d, time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return plural(minutes, "minute")
}

// ceilDiv divides rounding towards positive infinity
func ceilDiv(d, unit time.Duration) int64 {
	q := int64(d / unit)
	if d%unit > 0 {
		q++
	}
	return q
}

// CeilDays returns the number of whole or partial days in d
func CeilDays(d time.Duration) int {
	return int(ceilDiv(d, day))
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
