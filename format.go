package goThrottle

import (
	"strconv"
	"time"
)

// FormatDuration renders a remaining block duration for humans. It rounds
// up to whole minutes, and from 60 minutes on rounds up to whole hours:
// 90s is "2 minutes", 61m is "2 hours".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0 minutes"
	}

	minutes := int64((d-1)/time.Minute) + 1
	if minutes < 60 {
		return plural(minutes, "minute")
	}

	hours := (minutes + 59) / 60
	return plural(hours, "hour")
}

func plural(n int64, unit string) string {
	s := strconv.FormatInt(n, 10) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}
