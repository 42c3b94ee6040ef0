package media

import "log/slog"

// Health summarises the first audio track of the current stream.
type Health struct {
	TrackPresent bool `json:"track_present"`
	TrackCount   int  `json:"track_count"`
	Muted        bool `json:"muted"`
	Enabled      bool `json:"enabled"`
	Ended        bool `json:"ended"`
}

// Monitor watches the first audio track of a stream and keeps Health current.
//
// Track observers may fire on any goroutine; Monitor re-dispatches them through
// the dispatch function so Health is only touched on the owner's thread.
type Monitor struct {
	dispatch func(func())
	onChange func(Health)

	stream  *Stream
	track   Track
	detach  func()
	health  Health
	started bool
}

// NewMonitor returns a monitor. A nil dispatch runs callbacks inline; onChange may be nil.
func NewMonitor(dispatch func(func()), onChange func(Health)) *Monitor {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Monitor{dispatch: dispatch, onChange: onChange}
}

// SetStream points the monitor at s, moving observers to its first audio track.
// A track that is already observed is not observed twice.
func (m *Monitor) SetStream(s *Stream) {
	m.stream = s

	var first Track
	if tracks := s.AudioTracks(); len(tracks) > 0 {
		first = tracks[0]
	}

	if !sameTrack(m.track, first) {
		m.detachTrack()
		if first != nil {
			m.attach(first)
		}
	}

	m.recompute()
}

// Health returns the last computed health.
func (m *Monitor) Health() Health {
	return m.health
}

// Track returns the observed track, or nil.
func (m *Monitor) Track() Track {
	return m.track
}

// Close detaches all observers.
func (m *Monitor) Close() {
	m.detachTrack()
	m.stream = nil
}

func (m *Monitor) attach(t Track) {
	m.track = t
	m.detach = t.Observe(func(ev TrackEvent) {
		m.dispatch(func() { m.handle(t, ev) })
	})
	slog.Debug("observing audio track", "track", t.ID())
}

func (m *Monitor) detachTrack() {
	if m.detach != nil {
		m.detach()
		slog.Debug("stopped observing audio track", "track", m.track.ID())
	}
	m.detach = nil
	m.track = nil
}

// handle drops events from tracks that were detached while the event was in flight.
func (m *Monitor) handle(t Track, ev TrackEvent) {
	if !sameTrack(m.track, t) {
		return
	}
	slog.Debug("audio track event", "track", t.ID(), "event", ev)
	m.recompute()
}

func (m *Monitor) recompute() {
	h := Health{TrackCount: len(m.stream.AudioTracks())}
	if m.track != nil {
		h.TrackPresent = true
		h.Muted = m.track.Muted()
		h.Enabled = m.track.Enabled()
		h.Ended = m.track.ReadyState() == StateEnded
	}

	changed := !m.started || h != m.health
	m.health = h
	m.started = true
	if changed && m.onChange != nil {
		m.onChange(h)
	}
}

func sameTrack(a, b Track) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}
