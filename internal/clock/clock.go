// Package clock provides the single-threaded scheduling model the meter runs on.
//
// Every callback handed to a Scheduler runs on one goroutine, so components
// driven by it need no locking of their own. Frame callbacks model the display
// refresh, timer callbacks model one-shot timeouts, and Post hands work from
// other goroutines (capture, track events, HTTP handlers) to the loop.
package clock

import "time"

// DefaultFPS is the refresh rate used when none is configured.
const DefaultFPS = 60

// Handle cancels a scheduled callback. Cancel is idempotent and safe to call
// after the callback has run.
type Handle interface {
	Cancel()
}

// Scheduler schedules callbacks on a single logical thread.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time
	// RequestFrame runs fn once at the next display refresh.
	RequestFrame(fn func(time.Time)) Handle
	// AfterFunc runs fn once after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Handle
	// Post runs fn on the scheduler thread as soon as possible.
	Post(fn func())
}

// FrameInterval returns the refresh period for the given rate.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}
