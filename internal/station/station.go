// Package station runs the live meter: a PCM source feeding a media track,
// a widget drawing that track onto a display list, and the level and silence
// monitoring around it.
package station

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/events"
	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/render"
	"github.com/oszuidwest/zwfm-meter/internal/source"
	"github.com/oszuidwest/zwfm-meter/internal/types"
	"github.com/oszuidwest/zwfm-meter/internal/util"
	"github.com/oszuidwest/zwfm-meter/internal/widget"
)

// LevelInterval is how often window levels are measured for status and silence detection.
const LevelInterval = 100 * time.Millisecond

// subscriberBuffer bounds queued events per subscriber.
const subscriberBuffer = 32

// Sentinel errors for station operations.
var (
	ErrAlreadyRunning = errors.New("station already running")
	ErrNotRunning     = errors.New("station not running")
)

// Loop is the scheduler the widget runs on. Call runs fn on it and waits.
type Loop interface {
	clock.Scheduler
	Call(fn func()) error
}

// ProducerFunc builds the PCM producer for a config snapshot.
type ProducerFunc func(snap config.Snapshot, ffmpegPath string) (source.Producer, error)

// Station owns the source, its track and the widget. Exported methods are
// safe for concurrent use; widget work is marshalled onto the loop.
type Station struct {
	cfg         *config.Config
	ffmpegPath  string
	loop        Loop
	ctx         *audio.PCMContext
	log         *events.Logger
	newProducer ProducerFunc
	surface     atomic.Pointer[canvas.DisplayList]

	// Owned by the loop goroutine.
	widget     *widget.Widget
	levels     *audio.LevelMonitor
	levelTimer clock.Handle
	lastLevels types.AudioLevels

	mu      sync.RWMutex
	runner  *source.Runner
	track   *media.LocalTrack
	running bool

	// subMu is taken on the loop and must never be held across a loop call.
	subMu   sync.Mutex
	subs    map[int]chan types.WSEventResponse
	nextSub int
}

// New returns a stopped station. A nil newProducer selects DefaultProducer.
func New(cfg *config.Config, ffmpegPath string, loop Loop, log *events.Logger, newProducer ProducerFunc) (*Station, error) {
	snap := cfg.Snapshot()
	list, err := canvas.NewDisplayList(snap.Meter.Width, snap.Meter.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", widget.ErrResourceUnavailable, err)
	}
	if newProducer == nil {
		newProducer = DefaultProducer
	}

	s := &Station{
		cfg:         cfg,
		ffmpegPath:  ffmpegPath,
		loop:        loop,
		ctx:         audio.NewPCMContext(audio.AnalyserOptions{FFTSize: snap.Meter.FFTSize}),
		log:         log,
		newProducer: newProducer,
		levels:      audio.NewLevelMonitor(silenceConfig(snap)),
		lastLevels:  silentLevels(),
		subs:        make(map[int]chan types.WSEventResponse),
	}
	s.surface.Store(list)
	return s, nil
}

// DefaultProducer plays the configured audio file, or captures from the
// configured input device when no file is set.
func DefaultProducer(snap config.Snapshot, ffmpegPath string) (source.Producer, error) {
	if snap.AudioFile != "" {
		return source.NewFile(snap.AudioFile, source.FileOptions{Loop: !snap.AudioPlayOnce})
	}
	return source.NewCapture(snap.AudioInput, ffmpegPath), nil
}

// Start creates the source and widget and begins metering.
func (s *Station) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	runner, err := s.newRunner()
	if err != nil {
		return err
	}

	var werr error
	if err := s.loop.Call(func() {
		werr = s.startWidget(runner.Track())
	}); err != nil {
		return err
	}
	if werr != nil {
		return werr
	}

	if err := runner.Start(); err != nil {
		return err
	}
	s.runner = runner
	s.track = runner.Track()
	s.running = true
	slog.Info("station started", "source", runner.Status().Name)
	return nil
}

// Stop stops the source and closes the widget.
func (s *Station) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	var errs []error
	if err := s.runner.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.loop.Call(s.closeWidget); err != nil {
		errs = append(errs, err)
	}
	slog.Info("station stopped")
	return errors.Join(errs...)
}

// RestartTrack replaces the source and its track. The widget swaps its
// analysis node to the new stream without rebuilding.
func (s *Station) RestartTrack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	runner, err := s.newRunner()
	if err != nil {
		return err
	}

	old := s.runner
	oldTrack := s.track
	if err := old.Stop(); err != nil {
		slog.Warn("failed to stop previous source", "error", err)
	}
	oldTrack.Stop()

	var uerr error
	if err := s.loop.Call(func() {
		p := s.widget.Props()
		p.Stream = media.NewStream(runner.Track())
		uerr = s.widget.Update(p)
		s.levels.Reset()
	}); err != nil {
		return err
	}
	if uerr != nil {
		return uerr
	}

	if err := runner.Start(); err != nil {
		return err
	}
	s.runner = runner
	s.track = runner.Track()
	slog.Info("audio track restarted", "track", s.track.ID())
	return nil
}

// StopTrack ends the current track permanently and stops its source.
func (s *Station) StopTrack() error {
	s.mu.RLock()
	runner, track := s.runner, s.track
	s.mu.RUnlock()
	if track == nil {
		return ErrNotRunning
	}
	// The track ends before the runner mutes it, so the meter reports an ended track.
	track.Stop()
	return runner.Stop()
}

// SetTrackMuted marks the track as halted by its producer.
func (s *Station) SetTrackMuted(muted bool) error {
	track := s.currentTrack()
	if track == nil {
		return ErrNotRunning
	}
	track.SetMuted(muted)
	return nil
}

// SetTrackEnabled enables or disables the track on the consumer side.
func (s *Station) SetTrackEnabled(enabled bool) error {
	track := s.currentTrack()
	if track == nil {
		return ErrNotRunning
	}
	track.SetEnabled(enabled)
	return nil
}

// UpdateMeter validates, persists and applies new meter settings.
func (s *Station) UpdateMeter(m config.MeterConfig) error {
	if err := s.cfg.SetMeter(m); err != nil {
		return err
	}
	return s.applyMeter()
}

// SetMeterEnabled persists and applies the meter's enabled flag.
func (s *Station) SetMeterEnabled(enabled bool) error {
	if err := s.cfg.SetMeterEnabled(enabled); err != nil {
		return err
	}
	return s.applyMeter()
}

// Frame returns the last drawn display-list frame.
func (s *Station) Frame() canvas.Frame {
	return s.surface.Load().Snapshot()
}

// RenderPNG replays the last frame into an image and encodes it as PNG.
func (s *Station) RenderPNG(w io.Writer) error {
	f := s.Frame()
	img, err := canvas.NewImage(f.Width, f.Height)
	if err != nil {
		return err
	}
	if err := canvas.Replay(img, f.Ops); err != nil {
		return err
	}
	return img.EncodePNG(w)
}

// Status reports meter, alert, track, source and level state.
// Devices and version are left for the caller to fill.
func (s *Station) Status() types.WSStatusResponse {
	s.mu.RLock()
	runner, track := s.runner, s.track
	s.mu.RUnlock()

	status := types.WSStatusResponse{Type: "status"}
	if runner != nil {
		status.Source = runner.Status()
	} else {
		status.Source = types.SourceStatus{State: types.StateStopped, MaxRetries: types.MaxRetries}
	}

	err := s.loop.Call(func() {
		status.Levels = s.lastLevels
		if s.widget == nil {
			status.Meter = types.MeterStatus{Enabled: s.cfg.Snapshot().Meter.Enabled}
			status.Alert = types.AlertStatus{Kind: string(media.AlertNoTrack), Message: "No audio track"}
			return
		}
		status.Meter = s.meterStatus()
		a := s.widget.Alert()
		status.Alert = types.AlertStatus{Kind: string(a.Kind), Message: a.Message, Unmute: a.Unmute}
		status.Track = s.trackStatus(track)
	})
	if err != nil {
		slog.Debug("status unavailable", "error", err)
	}
	return status
}

// Subscribe returns a channel of lifecycle events and a function that
// unsubscribes. Events are dropped when the subscriber falls behind.
func (s *Station) Subscribe() (<-chan types.WSEventResponse, func()) {
	ch := make(chan types.WSEventResponse, subscriberBuffer)
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// AnalysisNodes returns how many analysis nodes are connected.
func (s *Station) AnalysisNodes() int {
	return s.ctx.ActiveNodes()
}

func (s *Station) newRunner() (*source.Runner, error) {
	p, err := s.newProducer(s.cfg.Snapshot(), s.ffmpegPath)
	if err != nil {
		return nil, err
	}
	track := media.NewLocalTrack(p.Name(), p.Format())
	return source.NewRunner(p, track, source.RunnerOptions{}), nil
}

func (s *Station) currentTrack() *media.LocalTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track
}

// applyMeter pushes the persisted meter settings into the widget.
func (s *Station) applyMeter() error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return nil
	}

	snap := s.cfg.Snapshot()
	var uerr error
	if err := s.loop.Call(func() {
		uerr = s.applyMeterOnLoop(snap)
	}); err != nil {
		return err
	}
	return uerr
}

func (s *Station) applyMeterOnLoop(snap config.Snapshot) error {
	p, err := props(snap, s.widget.Props().Stream, s.ctx)
	if err != nil {
		return err
	}

	list := s.surface.Load()
	if w, h := list.Size(); w == p.Shape.Width && h == p.Shape.Height {
		return s.widget.Update(p)
	}

	// A new size needs a new surface; shape and surface change in one rebuild.
	next, err := canvas.NewDisplayList(p.Shape.Width, p.Shape.Height)
	if err != nil {
		return err
	}
	if err := s.widget.Reconfigure(next, p); err != nil {
		return err
	}
	s.surface.Store(next)
	return nil
}

// startWidget runs on the loop.
func (s *Station) startWidget(track *media.LocalTrack) error {
	p, err := props(s.cfg.Snapshot(), media.NewStream(track), s.ctx)
	if err != nil {
		return err
	}
	w, err := widget.New(s.loop, s.surface.Load(), p)
	if err != nil {
		return err
	}
	s.widget = w

	forward := map[meter.Event]events.EventType{
		meter.EventStart:     events.EventStarted,
		meter.EventStop:      events.EventStopped,
		meter.EventStale:     events.EventStale,
		meter.EventRecovered: events.EventRecovered,
		widget.EventAlert:    events.EventAlert,
	}
	for ev, kind := range forward {
		w.On(ev, func() { s.publish(kind) })
	}

	s.levels.Reset()
	s.levelTimer = s.loop.AfterFunc(LevelInterval, s.measureLevels)
	return nil
}

// closeWidget runs on the loop.
func (s *Station) closeWidget() {
	if s.levelTimer != nil {
		s.levelTimer.Cancel()
		s.levelTimer = nil
	}
	if s.widget != nil {
		s.widget.Close()
		s.widget = nil
	}
	s.lastLevels = silentLevels()
}

// measureLevels runs on the loop every LevelInterval.
func (s *Station) measureLevels() {
	if s.widget == nil {
		return
	}
	s.levelTimer = s.loop.AfterFunc(LevelInterval, s.measureLevels)

	m, ok := s.widget.Node().(interface{ Levels() audio.Levels })
	if !ok {
		s.lastLevels = silentLevels()
		return
	}

	levels, ev := s.levels.Update(m.Levels(), s.loop.Now())
	s.lastLevels = levels
	switch {
	case ev.JustEntered:
		slog.Warn("silence detected", "rms", levels.RMS, "duration_ms", ev.DurationMs)
		s.publishDetail(events.EventSilence, "entered")
	case ev.JustRecovered:
		silence := util.FormatDuration(ev.TotalDurationMs)
		slog.Info("audio recovered", "silence", silence)
		s.publishDetail(events.EventSilence, "recovered after "+silence)
	}
}

func (s *Station) meterStatus() types.MeterStatus {
	p := s.widget.Props()
	return types.MeterStatus{
		Running:        s.widget.Running(),
		Enabled:        p.Enabled,
		Stale:          s.widget.Stale(),
		Shape:          string(p.Shape.Shape),
		BucketCount:    p.Shape.BucketCount,
		Width:          p.Shape.Width,
		Height:         p.Shape.Height,
		PreviousVolume: s.widget.State().PreviousVolume,
		Frames:         s.widget.Frames(),
	}
}

func (s *Station) trackStatus(track *media.LocalTrack) types.TrackStatus {
	h := s.widget.Health()
	st := types.TrackStatus{Present: h.TrackPresent, Count: h.TrackCount}
	if track == nil {
		return st
	}
	st.ID = track.ID()
	st.Label = track.Label()
	st.Enabled = track.Enabled()
	st.Muted = track.Muted()
	st.ReadyState = string(track.ReadyState())
	if a, ok := s.widget.Node().(*audio.PCMAnalyser); ok {
		st.Dropped = a.Dropped()
	}
	return st
}

// publish runs on the loop.
func (s *Station) publish(kind events.EventType) {
	detail := ""
	if kind == events.EventAlert {
		detail = s.widget.Alert().Message
	}
	s.publishDetail(kind, detail)
}

func (s *Station) publishDetail(kind events.EventType, detail string) {
	now := s.loop.Now()
	if err := s.log.Log(events.Event{Timestamp: now, Event: kind, Detail: detail}); err != nil {
		slog.Warn("failed to write event log", "error", err)
	}

	msg := types.WSEventResponse{
		Type:      "event",
		Event:     string(kind),
		Detail:    detail,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// props converts a config snapshot to widget props.
func props(snap config.Snapshot, stream *media.Stream, ctx audio.Context) (widget.Props, error) {
	reduction, err := audio.ParseReduction(snap.Meter.Reduction)
	if err != nil {
		return widget.Props{}, err
	}
	return widget.Props{
		Context: ctx,
		Stream:  stream,
		Shape: render.ShapeConfig{
			Shape:       render.Shape(snap.Meter.Shape),
			BucketCount: snap.Meter.BucketCount,
			Width:       snap.Meter.Width,
			Height:      snap.Meter.Height,
		},
		Enabled: snap.Meter.Enabled,
		Options: render.Options{
			DecayFactor: snap.Meter.DecayFactor,
			TooLoud:     snap.Meter.TooLoud,
		},
		Reduction:      reduction,
		WatchdogPeriod: snap.WatchdogPeriod,
	}, nil
}

func silenceConfig(snap config.Snapshot) audio.SilenceConfig {
	return audio.SilenceConfig{
		Threshold:  snap.SilenceThreshold,
		DurationMs: snap.SilenceDurationMs,
		RecoveryMs: snap.SilenceRecoveryMs,
	}
}

func silentLevels() types.AudioLevels {
	return types.AudioLevels{RMS: audio.MinDB, Peak: audio.MinDB, HeldPeak: audio.MinDB}
}
