package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProjectFunc converts a wall-clock time of day on a calendar date in a
// named timezone into an absolute instant. Sitewide breaks are authored
// in local wall-clock time while slots operate on instants; injecting
// the projection keeps tests independent of the process locale.
type ProjectFunc func(date time.Time, clock string, tz string) (time.Time, error)

// ProjectWallClock is the production ProjectFunc, backed by the system
// timezone database.
func ProjectWallClock(date time.Time, clock string, tz string) (time.Time, error) {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}

func parseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", clock)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour, minute, nil
}
