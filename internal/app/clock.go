package app

import "time"

// Clock is the time source of the registries. Durations are computed with
// Sub on values it returns, so implementations must keep the monotonic
// reading that time.Now attaches.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
