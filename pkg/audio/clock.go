package audio

import "time"

// Clock supplies "now" for scheduling math. The playback scheduler only
// ever compares and adds; it never sleeps on the clock, so a test clock
// can advance manually.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the process-monotonic wall clock. time.Time carries a
// monotonic reading on this platform, so cursor comparisons are immune to
// wall-clock adjustments.
var SystemClock Clock = systemClock{}
