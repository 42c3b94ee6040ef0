package meter

import (
	"log/slog"
	"slices"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/render"
)

// Event is an animator lifecycle notification.
type Event string

// Lifecycle events.
const (
	EventStart     Event = "start"
	EventStop      Event = "stop"
	EventStale     Event = "stale"
	EventRecovered Event = "recovered"
)

// Options configure an Animator.
type Options struct {
	WatchdogPeriod time.Duration
	Reduction      audio.Reduction
}

type observer struct {
	id int
	fn func()
}

// Animator samples the analyser once per frame and forwards the level to the
// strategy. All methods must be called on the scheduler's thread.
type Animator struct {
	sched    clock.Scheduler
	sampler  *audio.Sampler
	analyser audio.Analyser
	strategy render.Strategy
	watchdog *Watchdog

	enabled  bool
	running  bool
	stopping bool
	frame    clock.Handle
	frames   uint64

	observers map[Event][]observer
	nextID    int
}

// NewAnimator returns an animator that starts immediately when enabled.
// analyser may be nil; the loop then draws silence until one is supplied.
func NewAnimator(sched clock.Scheduler, analyser audio.Analyser, enabled bool, strategy render.Strategy, opts Options) *Animator {
	a := &Animator{
		sched:     sched,
		sampler:   audio.NewSampler(opts.Reduction),
		analyser:  analyser,
		strategy:  strategy,
		enabled:   enabled,
		observers: make(map[Event][]observer),
	}
	a.watchdog = NewWatchdog(sched, opts.WatchdogPeriod, a.expire)
	if enabled {
		a.Start()
	}
	return a
}

// Enable starts or stops the loop when the flag changes.
func (a *Animator) Enable(enabled bool) {
	if enabled == a.enabled {
		return
	}
	a.enabled = enabled
	if enabled {
		a.Start()
	} else {
		a.Stop()
	}
}

// Start begins the frame loop and draws the first frame synchronously.
// It is a no-op while the loop is live or the animator is disabled.
func (a *Animator) Start() {
	if !a.enabled || a.running {
		return
	}
	a.running = true
	a.stopping = false
	a.strategy.Start()
	a.watchdog.Start()
	a.emit(EventStart)
	a.tick(a.sched.Now())
}

// Stop cancels the next frame, stops the watchdog and has the strategy draw its idle frame.
func (a *Animator) Stop() {
	a.stopping = true
	if a.frame != nil {
		a.frame.Cancel()
		a.frame = nil
	}
	a.watchdog.Stop()
	a.strategy.Stop()

	if a.running {
		a.running = false
		a.emit(EventStop)
	}
}

// UpdateAnalyser stops a live loop, swaps the analyser and resumes when enabled.
// A stopped animator already shows its idle frame and is not stopped again.
func (a *Animator) UpdateAnalyser(analyser audio.Analyser) {
	if a.running {
		a.Stop()
	}
	a.analyser = analyser
	if a.enabled {
		a.Start()
	}
}

// On registers fn for ev and returns a function that removes it.
func (a *Animator) On(ev Event, fn func()) (remove func()) {
	a.nextID++
	id := a.nextID
	a.observers[ev] = append(a.observers[ev], observer{id: id, fn: fn})
	return func() {
		a.observers[ev] = slices.DeleteFunc(a.observers[ev], func(o observer) bool { return o.id == id })
	}
}

// Running reports whether the frame loop is live.
func (a *Animator) Running() bool { return a.running }

// Enabled reports the enabled flag.
func (a *Animator) Enabled() bool { return a.enabled }

// Stale reports whether the watchdog has expired.
func (a *Animator) Stale() bool { return a.watchdog.Expired() }

// Frames returns how many frames the loop has drawn.
func (a *Animator) Frames() uint64 { return a.frames }

// Analyser returns the current analyser, which may be nil.
func (a *Animator) Analyser() audio.Analyser { return a.analyser }

// Strategy returns the strategy being driven.
func (a *Animator) Strategy() render.Strategy { return a.strategy }

func (a *Animator) tick(time.Time) {
	a.frame = nil
	if !a.enabled || a.stopping || !a.running {
		return
	}

	var volume float64
	if a.analyser != nil {
		volume = a.sampler.Sample(a.analyser)
		if audio.IsFresh(a.analyser) && a.watchdog.Feed() {
			slog.Debug("meter sampler recovered")
			a.emit(EventRecovered)
		}
	}
	a.strategy.Draw(volume, a.watchdog.Expired())
	a.frames++

	a.frame = a.sched.RequestFrame(a.tick)
}

// expire forces a stale frame on every check that finds the sampler stale.
func (a *Animator) expire(first bool) {
	if first {
		slog.Debug("meter sampler stale", "period", a.watchdog.Period())
		a.emit(EventStale)
	}
	if !a.running || a.stopping {
		return
	}

	// The forced frame takes the place of the pending one so the level
	// decays once per drawn frame.
	if a.frame != nil {
		a.frame.Cancel()
	}
	a.strategy.Draw(0, true)
	a.frames++
	a.frame = a.sched.RequestFrame(a.tick)
}

func (a *Animator) emit(ev Event) {
	for _, o := range slices.Clone(a.observers[ev]) {
		o.fn()
	}
}
