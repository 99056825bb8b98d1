package session

import "time"

// Watchdog tracks the last time the exercise state changed. Only a change in
// reps or stage counts as activity, so a hold longer than the threshold with
// no stage change (an isometric hold) is treated as a pause.
type Watchdog struct {
	threshold time.Duration
	last      time.Time
}

// NewWatchdog creates a watchdog that expires after threshold of inactivity.
func NewWatchdog(threshold time.Duration) Watchdog {
	return Watchdog{threshold: threshold}
}

// Touch records activity at now.
func (w *Watchdog) Touch(now time.Time) { w.last = now }

// LastActivity returns the time of the last recorded activity.
func (w Watchdog) LastActivity() time.Time { return w.last }

// Expired reports whether more than the threshold has passed since the last activity.
func (w Watchdog) Expired(now time.Time) bool {
	if w.last.IsZero() || w.threshold <= 0 {
		return false
	}
	return now.Sub(w.last) > w.threshold
}
