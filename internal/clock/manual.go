package clock

import (
	"slices"
	"time"
)

// Manual is a deterministic Scheduler driven explicitly by the caller.
// It is not safe for concurrent use; tests drive it from one goroutine.
type Manual struct {
	now      time.Time
	interval time.Duration
	nextID   uint64
	frames   []*manualEntry
	timers   []*manualEntry
	tasks    []func()
}

type manualEntry struct {
	id        uint64
	at        time.Time
	frame     func(time.Time)
	timer     func()
	cancelled bool
}

func (e *manualEntry) Cancel() {
	e.cancelled = true
}

// NewManual returns a manual scheduler starting at start with a 60 fps frame interval.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, interval: FrameInterval(DefaultFPS)}
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	return m.now
}

// RequestFrame queues fn for the next Frame call.
func (m *Manual) RequestFrame(fn func(time.Time)) Handle {
	m.nextID++
	e := &manualEntry{id: m.nextID, frame: fn}
	m.frames = append(m.frames, e)
	return e
}

// AfterFunc queues fn to fire once the clock has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.nextID++
	e := &manualEntry{id: m.nextID, at: m.now.Add(d), timer: fn}
	m.timers = append(m.timers, e)
	return e
}

// Post queues fn until the next Flush, Frame or Advance.
func (m *Manual) Post(fn func()) {
	m.tasks = append(m.tasks, fn)
}

// Flush runs every posted task, including tasks posted while flushing.
func (m *Manual) Flush() {
	for len(m.tasks) > 0 {
		fn := m.tasks[0]
		m.tasks = m.tasks[1:]
		fn()
	}
}

// Frame advances the clock by one frame interval, fires due timers and runs the
// frame callbacks that were pending when it was called. It returns how many ran.
func (m *Manual) Frame() int {
	m.Advance(m.interval)
	due := m.frames
	m.frames = nil
	ran := 0
	for _, e := range due {
		if e.cancelled {
			continue
		}
		e.cancelled = true
		e.frame(m.now)
		ran++
	}
	m.Flush()
	return ran
}

// Advance moves the clock forward by d, firing timers in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	target := m.now.Add(d)
	for {
		next := m.nextTimer(target)
		if next == nil {
			break
		}
		m.now = next.at
		next.cancelled = true
		next.timer()
		m.Flush()
	}
	m.now = target
	m.compact()
}

// PendingFrames reports live frame callbacks waiting for the next Frame.
func (m *Manual) PendingFrames() int {
	n := 0
	for _, e := range m.frames {
		if !e.cancelled {
			n++
		}
	}
	return n
}

// PendingTimers reports live timers that have not fired yet.
func (m *Manual) PendingTimers() int {
	n := 0
	for _, e := range m.timers {
		if !e.cancelled {
			n++
		}
	}
	return n
}

// nextTimer returns the earliest live timer due at or before target.
func (m *Manual) nextTimer(target time.Time) *manualEntry {
	var next *manualEntry
	for _, e := range m.timers {
		if e.cancelled || e.at.After(target) {
			continue
		}
		if next == nil || e.at.Before(next.at) || (e.at.Equal(next.at) && e.id < next.id) {
			next = e
		}
	}
	return next
}

func (m *Manual) compact() {
	m.timers = slices.DeleteFunc(m.timers, func(e *manualEntry) bool { return e.cancelled })
}
