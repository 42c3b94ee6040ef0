// Package meter drives a render strategy from an analyser once per display frame.
package meter

import (
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/clock"
)

// DefaultWatchdogPeriod is how long the sampler may go without fresh data before it is stale.
const DefaultWatchdogPeriod = 1000 * time.Millisecond

// Watchdog detects a sampler that stopped producing fresh data. It checks
// every half period on the scheduler, independent of the frame loop.
// Like everything driven by a clock.Scheduler it is not safe for concurrent use.
type Watchdog struct {
	sched    clock.Scheduler
	period   time.Duration
	onExpire func(first bool)

	last    time.Time
	expired bool
	running bool
	timer   clock.Handle
}

// NewWatchdog returns a stopped watchdog. onExpire runs on every check that
// finds the sampler stale; first is set on the check that made it stale.
func NewWatchdog(sched clock.Scheduler, period time.Duration, onExpire func(first bool)) *Watchdog {
	if period <= 0 {
		period = DefaultWatchdogPeriod
	}
	return &Watchdog{sched: sched, period: period, onExpire: onExpire}
}

// Start records the current time and begins periodic checks. It is a no-op while running.
func (w *Watchdog) Start() {
	if w.running {
		return
	}
	w.running = true
	w.last = w.sched.Now()
	w.expired = false
	w.schedule()
}

// Feed records a fresh sample and reports whether this cleared an expiry.
func (w *Watchdog) Feed() bool {
	w.last = w.sched.Now()
	recovered := w.expired
	w.expired = false
	return recovered
}

// Stop cancels the periodic check and clears the expired flag.
func (w *Watchdog) Stop() {
	w.running = false
	w.expired = false
	if w.timer != nil {
		w.timer.Cancel()
		w.timer = nil
	}
}

// Expired reports whether more than one period passed without a fresh sample.
func (w *Watchdog) Expired() bool { return w.expired }

// Running reports whether periodic checks are scheduled.
func (w *Watchdog) Running() bool { return w.running }

// Period returns the staleness period.
func (w *Watchdog) Period() time.Duration { return w.period }

func (w *Watchdog) schedule() {
	w.timer = w.sched.AfterFunc(w.period/2, w.check)
}

func (w *Watchdog) check() {
	w.timer = nil
	if !w.running {
		return
	}

	if w.sched.Now().Sub(w.last) > w.period {
		first := !w.expired
		w.expired = true
		if w.onExpire != nil {
			w.onExpire(first)
		}
	} else {
		w.expired = false
	}

	// onExpire may have stopped or restarted the watchdog.
	if w.running && w.timer == nil {
		w.schedule()
	}
}
