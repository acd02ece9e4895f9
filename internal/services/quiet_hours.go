package services

import (
	"fmt"
	"time"

	"github.com/fitos/notify/pkg/validator"
)

const minutesPerDay = 24 * 60

// ParseClock converts an HH:MM string into minutes since midnight.
func ParseClock(value string) (int, error) {
	if !validator.IsClockTime(value) {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// InQuietHours reports whether now (minutes since midnight) falls inside the
// quiet window [start, end]. Both ends are inclusive. A window whose start is
// after its end wraps past midnight.
func InQuietHours(start, end, now int) bool {
	now = ((now % minutesPerDay) + minutesPerDay) % minutesPerDay
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

func minuteOfDay(t time.Time) int {
	t = t.UTC()
	return t.Hour()*60 + t.Minute()
}
