package synth

import (
	"fmt"
	"time"

	"fisbap/internal/errors"
)

// ISO-8601 recurrence periods per cadence keyword
var cadencePeriods = map[string]string{
	"daily":     "P1D",
	"weekly":    "P1W",
	"monthly":   "P1M",
	"quarterly": "P3M",
	"yearly":    "P1Y",
}

// BuildFrequency derives the recurring-investment schedule string
// "R{repeat}/{start-date}/{period}". The start date is the given day in the
// month of now; a day the month doesn't have is a validation error rather
// than a rolled-over date.
func BuildFrequency(cadence string, repeat, day int, now time.Time) (string, error) {
	period, ok := cadencePeriods[cadence]
	if !ok {
		return "", errors.Validation(fmt.Sprintf("unknown frequency cadence %q", cadence))
	}
	if repeat <= 0 {
		return "", errors.Validation("frequency repeat count must be positive")
	}
	if day < 1 || day > 31 {
		return "", errors.Validation(fmt.Sprintf("day %d is not a calendar day", day))
	}

	start := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)
	if start.Day() != day {
		return "", errors.Validation(fmt.Sprintf("day %d does not exist in %s", day, now.Month()))
	}

	return fmt.Sprintf("R%d/%s/%s", repeat, start.Format("2006-01-02"), period), nil
}
