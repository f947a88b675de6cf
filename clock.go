package mainloop

import "time"

// The loop relies exclusively on the monotonic clock reading carried by
// time.Time values produced here. Wall-clock adjustments (NTP slew, manual
// changes) never retire nor delay a timer, because Sub and Add on such
// values operate on the monotonic component.

// monotonicNow returns the current monotonic instant.
func monotonicNow() time.Time {
	return time.Now()
}

// remainingUntil returns the duration from now until expire, clamped to zero
// when expire has already passed.
func remainingUntil(expire, now time.Time) time.Duration {
	d := expire.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
