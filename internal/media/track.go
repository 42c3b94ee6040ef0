// Package media models input streams and tracks and watches their health.
package media

import (
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind is the media kind of a track.
type Kind string

// Track kinds.
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ReadyState is the lifecycle state of a track.
type ReadyState string

// Track ready states.
const (
	StateLive  ReadyState = "live"
	StateEnded ReadyState = "ended"
)

// TrackEvent is a notification emitted by a track.
type TrackEvent string

// Track events.
const (
	EventEnabledChanged TrackEvent = "enabled-changed"
	EventMute           TrackEvent = "mute"
	EventUnmute         TrackEvent = "unmute"
	EventEnded          TrackEvent = "ended"
)

// TrackObserver receives track events. Observers may be called from any goroutine.
type TrackObserver func(TrackEvent)

// Track is a single media track with change notifications.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	Muted() bool
	ReadyState() ReadyState
	// Observe registers obs and returns a function that removes it.
	Observe(obs TrackObserver) (cancel func())
}

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// PCMSource is a track that delivers PCM to registered sinks.
type PCMSource interface {
	Format() Format
	// AddSink registers w for PCM writes and returns a function that removes it.
	AddSink(w io.Writer) (remove func())
}

// LocalTrack is an audio track fed by a local producer through Write.
// It is safe for concurrent use.
type LocalTrack struct {
	id     string
	label  string
	format Format

	mu        sync.Mutex
	enabled   bool
	muted     bool
	ended     bool
	nextID    int
	observers map[int]TrackObserver
	sinks     map[int]io.Writer
}

// NewLocalTrack returns a live, enabled, unmuted audio track.
func NewLocalTrack(label string, format Format) *LocalTrack {
	return &LocalTrack{
		id:        uuid.New().String(),
		label:     label,
		format:    format,
		enabled:   true,
		observers: make(map[int]TrackObserver),
		sinks:     make(map[int]io.Writer),
	}
}

// ID returns the track's unique identifier.
func (t *LocalTrack) ID() string { return t.id }

// Label returns the human-readable track label.
func (t *LocalTrack) Label() string { return t.label }

// Kind returns KindAudio.
func (t *LocalTrack) Kind() Kind { return KindAudio }

// Format returns the PCM format written to sinks.
func (t *LocalTrack) Format() Format { return t.format }

// Enabled reports whether the track is enabled.
func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Muted reports whether the producer has muted the track.
func (t *LocalTrack) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// ReadyState reports whether the track is live or ended.
func (t *LocalTrack) ReadyState() ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return StateEnded
	}
	return StateLive
}

// Observe registers obs for track events.
func (t *LocalTrack) Observe(obs TrackObserver) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.observers[id] = obs
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers, id)
	}
}

// ObserverCount reports the number of registered observers.
func (t *LocalTrack) ObserverCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.observers)
}

// AddSink registers w to receive PCM written to the track.
func (t *LocalTrack) AddSink(w io.Writer) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.sinks[id] = w
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.sinks, id)
	}
}

// SinkCount reports the number of registered sinks.
func (t *LocalTrack) SinkCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// SetEnabled enables or disables the track. Disabled tracks deliver silence.
func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	if t.enabled == enabled {
		t.mu.Unlock()
		return
	}
	t.enabled = enabled
	t.mu.Unlock()
	t.emit(EventEnabledChanged)
}

// SetMuted marks the track muted by its producer. Muted tracks deliver silence.
func (t *LocalTrack) SetMuted(muted bool) {
	t.mu.Lock()
	if t.muted == muted || t.ended {
		t.mu.Unlock()
		return
	}
	t.muted = muted
	t.mu.Unlock()
	if muted {
		t.emit(EventMute)
	} else {
		t.emit(EventUnmute)
	}
}

// Stop ends the track permanently. Writes after Stop are discarded.
func (t *LocalTrack) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.mu.Unlock()
	t.emit(EventEnded)
}

// Write delivers PCM to every sink. It never fails; sink errors are logged.
func (t *LocalTrack) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return len(p), nil
	}
	payload := p
	if !t.enabled || t.muted {
		payload = make([]byte, len(p))
	}
	sinks := make([]io.Writer, 0, len(t.sinks))
	for _, w := range t.sinks {
		sinks = append(sinks, w)
	}
	t.mu.Unlock()

	for _, w := range sinks {
		if _, err := w.Write(payload); err != nil {
			slog.Debug("track sink write failed", "track", t.id, "error", err)
		}
	}
	return len(p), nil
}

// emit notifies observers outside the lock.
func (t *LocalTrack) emit(ev TrackEvent) {
	t.mu.Lock()
	observers := make([]TrackObserver, 0, len(t.observers))
	for _, obs := range t.observers {
		observers = append(observers, obs)
	}
	t.mu.Unlock()

	for _, obs := range observers {
		obs(ev)
	}
}
