package workflow

import (
	"strings"
	"time"
)

// DelayDuration converts a delay node's duration and unit to a wait time.
// Recognized units are minutes, hours and days (singular, plural or the
// short forms m, h, d); anything else counts as minutes.
func DelayDuration(duration float64, unit string) time.Duration {
	if duration <= 0 {
		return 0
	}
	var per time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "hour", "hours", "h":
		per = time.Hour
	case "day", "days", "d":
		per = 24 * time.Hour
	default:
		per = time.Minute
	}
	return time.Duration(duration * float64(per))
}
