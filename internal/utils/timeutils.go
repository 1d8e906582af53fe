package utils

import (
	"fmt"
	"math"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// EpochSecondsToTime converts a float epoch-second value, as carried by
// trace segments, into a UTC time.
func EpochSecondsToTime(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// DurationMs returns the elapsed milliseconds between two epoch-second
// values, never negative.
func DurationMs(start, end float64) float64 {
	if end < start {
		return 0
	}
	return (end - start) * 1000
}
