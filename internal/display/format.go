// Package display formats ETA board values for riders.
package display

import (
	"fmt"
	"time"
)

// ClockLayout is the 12-hour clock shown next to each stop.
const ClockLayout = "3:04 PM"

// Clock renders an epoch-millisecond arrival in loc. Zero means closed and
// renders empty.
func Clock(ms int64, loc *time.Location) string {
	if ms == 0 {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(ClockLayout)
}

// Countdown renders the time left until an epoch-millisecond arrival as
// "Xm Ys". Arrivals at or before now render "Arrived"; zero renders empty.
func Countdown(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	left := time.UnixMilli(ms).Sub(now)
	if left <= 0 {
		return "Arrived"
	}
	secs := int64(left / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
