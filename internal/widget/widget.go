// Package widget composes an analysis node, a render strategy, an animator and
// a track monitor into a live audio level meter.
package widget

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/render"
)

// ErrResourceUnavailable is returned when the drawing surface cannot be used.
var ErrResourceUnavailable = errors.New("meter resource unavailable")

// EventAlert is emitted when the alert changes. Animator events are forwarded unchanged.
const EventAlert meter.Event = "alert"

// Props are the caller-controlled inputs of a Widget.
type Props struct {
	// Context creates analysis nodes. A nil context leaves the meter idle.
	Context audio.Context
	// Stream is the input. Its first audio track is monitored.
	Stream *media.Stream
	// Shape fixes the geometry. Zero Width or Height take the surface size.
	Shape render.ShapeConfig
	// Enabled runs the frame loop.
	Enabled bool
	// Options tune decay and the too-loud threshold. Zero fields take defaults.
	Options render.Options
	// Reduction selects how analyser data becomes a level.
	Reduction audio.Reduction
	// WatchdogPeriod is how long the sampler may go without fresh data.
	WatchdogPeriod time.Duration
}

type observer struct {
	id int
	fn func()
}

// Widget owns exactly one strategy, animator and analysis node at a time and
// replaces them when the surface, context, shape or stream changes.
// Like the animator it must only be used from the scheduler's goroutine.
type Widget struct {
	sched   clock.Scheduler
	surface canvas.Surface
	props   Props

	strategy render.Strategy
	animator *meter.Animator
	node     audio.Node
	monitor  *media.Monitor
	alert    media.Alert
	unsub    []func()

	observers map[meter.Event][]observer
	nextID    int
	closed    bool
}

// New builds a widget on surface and draws its idle frame.
func New(sched clock.Scheduler, surface canvas.Surface, props Props) (*Widget, error) {
	if surface == nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, canvas.ErrNoSurface)
	}

	w := &Widget{
		sched:     sched,
		surface:   surface,
		props:     normalize(props, surface),
		observers: make(map[meter.Event][]observer),
	}
	w.monitor = media.NewMonitor(sched.Post, func(media.Health) { w.updateAlert() })

	if err := w.rebuild(); err != nil {
		return nil, err
	}
	w.monitor.SetStream(w.props.Stream)
	w.updateAlert()
	return w, nil
}

// Update applies new props. A change of shape, options or context rebuilds
// the pipeline; a different stream swaps the analysis node; the same stream
// resumes the existing one.
func (w *Widget) Update(p Props) error {
	if w.closed {
		return ErrResourceUnavailable
	}
	p = normalize(p, w.surface)
	old := w.props
	w.props = p

	switch {
	case needsRebuild(old, p):
		if err := w.rebuild(); err != nil {
			w.props = old
			return err
		}
		slog.Debug("meter rebuilt", "shape", p.Shape.Shape, "buckets", p.Shape.BucketCount)
		if !media.SameStream(old.Stream, p.Stream) {
			w.monitor.SetStream(p.Stream)
		}

	case !media.SameStream(old.Stream, p.Stream):
		// Stop once, before the old node goes away; UpdateAnalyser then
		// finds the loop stopped and only swaps and resumes.
		if p.Enabled {
			w.animator.Stop()
		} else {
			w.animator.Enable(false)
		}
		w.disconnect()
		w.node = w.connect()
		w.animator.UpdateAnalyser(w.analyser())
		w.animator.Enable(p.Enabled)
		w.monitor.SetStream(p.Stream)
		slog.Debug("meter stream changed", "stream", p.Stream.ID())

	default:
		w.animator.Enable(p.Enabled)
		w.animator.Start()
	}

	w.updateAlert()
	return nil
}

// SetSurface moves the meter onto s, rebuilding the strategy and animator.
func (w *Widget) SetSurface(s canvas.Surface) error {
	return w.Reconfigure(s, w.props)
}

// Reconfigure moves the meter onto s and applies p with a single rebuild.
// On failure the widget keeps its surface, props and running pipeline.
func (w *Widget) Reconfigure(s canvas.Surface, p Props) error {
	if s == nil {
		return fmt.Errorf("%w: %w", ErrResourceUnavailable, canvas.ErrNoSurface)
	}
	if w.closed {
		return ErrResourceUnavailable
	}
	oldSurface, old := w.surface, w.props
	w.surface = s
	w.props = normalize(p, s)
	if err := w.rebuild(); err != nil {
		w.surface, w.props = oldSurface, old
		return err
	}
	if !media.SameStream(old.Stream, w.props.Stream) {
		w.monitor.SetStream(w.props.Stream)
	}
	w.updateAlert()
	return nil
}

// On registers fn for ev and returns a function that removes it.
func (w *Widget) On(ev meter.Event, fn func()) (remove func()) {
	w.nextID++
	id := w.nextID
	w.observers[ev] = append(w.observers[ev], observer{id: id, fn: fn})
	return func() {
		w.observers[ev] = slices.DeleteFunc(w.observers[ev], func(o observer) bool { return o.id == id })
	}
}

// Alert returns the alert for the current props and stream health.
func (w *Widget) Alert() media.Alert { return w.alert }

// Health returns the monitored stream health.
func (w *Widget) Health() media.Health { return w.monitor.Health() }

// Running reports whether the frame loop is live.
func (w *Widget) Running() bool { return w.animator != nil && w.animator.Running() }

// Stale reports whether the watchdog has expired.
func (w *Widget) Stale() bool { return w.animator != nil && w.animator.Stale() }

// Frames returns how many frames the current animator has drawn.
func (w *Widget) Frames() uint64 {
	if w.animator == nil {
		return 0
	}
	return w.animator.Frames()
}

// State returns the strategy's render state.
func (w *Widget) State() render.State { return w.strategy.State() }

// Props returns the effective props.
func (w *Widget) Props() Props { return w.props }

// Strategy returns the current strategy.
func (w *Widget) Strategy() render.Strategy { return w.strategy }

// Node returns the current analysis node, or nil.
func (w *Widget) Node() audio.Node { return w.node }

// Surface returns the drawing surface.
func (w *Widget) Surface() canvas.Surface { return w.surface }

// Close stops the meter and releases the node and track observers.
func (w *Widget) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.teardown()
	w.monitor.Close()
	slog.Debug("meter closed")
}

// rebuild replaces strategy, node and animator. The new strategy is built
// first so a bad config leaves the running pipeline untouched.
func (w *Widget) rebuild() error {
	strategy, err := render.New(w.props.Shape, w.props.Options, w.surface)
	if err != nil {
		if errors.Is(err, canvas.ErrNoSurface) {
			return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		}
		return err
	}

	w.teardown()
	w.strategy = strategy
	strategy.Stop()
	w.node = w.connect()

	w.animator = meter.NewAnimator(w.sched, w.analyser(), false, strategy, meter.Options{
		WatchdogPeriod: w.props.WatchdogPeriod,
		Reduction:      w.props.Reduction,
	})
	for _, ev := range []meter.Event{meter.EventStart, meter.EventStop, meter.EventStale, meter.EventRecovered} {
		w.unsub = append(w.unsub, w.animator.On(ev, func() { w.emit(ev) }))
	}
	w.animator.Enable(w.props.Enabled)
	return nil
}

func (w *Widget) teardown() {
	if w.animator != nil {
		w.animator.Stop()
	}
	for _, off := range w.unsub {
		off()
	}
	w.unsub = nil
	w.animator = nil
	w.disconnect()
}

func (w *Widget) connect() audio.Node {
	if w.props.Context == nil || w.props.Stream == nil {
		return nil
	}
	node, err := w.props.Context.NewAnalyser(w.props.Stream)
	if err != nil {
		if errors.Is(err, audio.ErrNoAudioTrack) {
			slog.Debug("meter stream has no pcm track", "stream", w.props.Stream.ID())
		} else {
			slog.Warn("failed to create analyser", "error", err)
		}
		return nil
	}
	return node
}

func (w *Widget) disconnect() {
	if w.node != nil {
		w.node.Disconnect()
		w.node = nil
	}
}

// analyser returns the node as an Analyser, keeping a nil node a nil interface.
func (w *Widget) analyser() audio.Analyser {
	if w.node == nil {
		return nil
	}
	return w.node
}

func (w *Widget) updateAlert() {
	if w.closed {
		return
	}
	a := media.ChooseAlert(!w.props.Enabled, w.monitor.Health())
	if a == w.alert {
		return
	}
	w.alert = a
	if a.Active() {
		slog.Info("meter alert", "kind", a.Kind, "message", a.Message)
	} else {
		slog.Info("meter alert cleared")
	}
	w.emit(EventAlert)
}

func (w *Widget) emit(ev meter.Event) {
	for _, o := range slices.Clone(w.observers[ev]) {
		o.fn()
	}
}

func needsRebuild(old, p Props) bool {
	return old.Shape != p.Shape ||
		old.Options != p.Options ||
		old.Context != p.Context ||
		old.Reduction != p.Reduction ||
		old.WatchdogPeriod != p.WatchdogPeriod
}

func normalize(p Props, s canvas.Surface) Props {
	p.Options = p.Options.WithDefaults()
	if p.Shape.Shape == "" {
		p.Shape.Shape = render.ShapeStepped
	}
	if p.Shape.BucketCount == 0 {
		p.Shape.BucketCount = render.DefaultBucketCount
	}
	if p.Shape.Width == 0 || p.Shape.Height == 0 {
		sw, sh := s.Size()
		if p.Shape.Width == 0 {
			p.Shape.Width = sw
		}
		if p.Shape.Height == 0 {
			p.Shape.Height = sh
		}
	}
	if p.Reduction == "" {
		p.Reduction = audio.MeanFrequency
	}
	if p.WatchdogPeriod <= 0 {
		p.WatchdogPeriod = meter.DefaultWatchdogPeriod
	}
	return p
}
