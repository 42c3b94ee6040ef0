package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = Format{SampleRate: 48000, Channels: 2}

func TestLocalTrack_WriteDeliversSilenceWhenMutedOrDisabled(t *testing.T) {
	track := NewLocalTrack("mic", testFormat)
	var sink bytes.Buffer
	remove := track.AddSink(&sink)

	_, err := track.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, sink.Bytes())

	sink.Reset()
	track.SetMuted(true)
	_, _ = track.Write([]byte{1, 2, 3, 4})
	assert.Equal(t, []byte{0, 0, 0, 0}, sink.Bytes())

	sink.Reset()
	track.SetMuted(false)
	track.SetEnabled(false)
	_, _ = track.Write([]byte{5, 6})
	assert.Equal(t, []byte{0, 0}, sink.Bytes())

	sink.Reset()
	track.Stop()
	_, _ = track.Write([]byte{5, 6})
	assert.Empty(t, sink.Bytes())

	remove()
	assert.Equal(t, 0, track.SinkCount())
}

func TestLocalTrack_EmitsEventsOnlyOnChange(t *testing.T) {
	track := NewLocalTrack("mic", testFormat)
	var events []TrackEvent
	cancel := track.Observe(func(ev TrackEvent) { events = append(events, ev) })

	track.SetEnabled(true)
	track.SetEnabled(false)
	track.SetMuted(true)
	track.SetMuted(true)
	track.SetMuted(false)
	track.Stop()
	track.Stop()
	track.SetMuted(true)

	assert.Equal(t, []TrackEvent{EventEnabledChanged, EventMute, EventUnmute, EventEnded}, events)
	assert.Equal(t, StateEnded, track.ReadyState())

	cancel()
	assert.Equal(t, 0, track.ObserverCount())
}

func TestStream_IdentityAndAudioTracks(t *testing.T) {
	a := NewLocalTrack("a", testFormat)
	b := NewLocalTrack("b", testFormat)
	s1 := NewStream(a, b)
	s2 := NewStream(a)

	assert.NotEmpty(t, s1.ID())
	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.True(t, SameStream(s1, s1))
	assert.False(t, SameStream(s1, s2))
	assert.True(t, SameStream(nil, nil))
	assert.False(t, SameStream(s1, nil))
	assert.Len(t, s1.AudioTracks(), 2)
	assert.Nil(t, (*Stream)(nil).AudioTracks())
}

func TestMonitor_TracksHealthThroughEvents(t *testing.T) {
	track := NewLocalTrack("mic", testFormat)
	var changes []Health
	m := NewMonitor(nil, func(h Health) { changes = append(changes, h) })

	m.SetStream(NewStream(track))
	require.Len(t, changes, 1)
	assert.Equal(t, Health{TrackPresent: true, TrackCount: 1, Enabled: true}, m.Health())

	track.SetMuted(true)
	assert.True(t, m.Health().Muted)

	track.SetMuted(false)
	track.SetEnabled(false)
	assert.False(t, m.Health().Enabled)

	track.Stop()
	assert.True(t, m.Health().Ended)
	assert.Len(t, changes, 5)
}

func TestMonitor_ObservesTrackOnce(t *testing.T) {
	track := NewLocalTrack("mic", testFormat)
	m := NewMonitor(nil, nil)

	m.SetStream(NewStream(track))
	m.SetStream(NewStream(track))
	assert.Equal(t, 1, track.ObserverCount())

	other := NewLocalTrack("other", testFormat)
	m.SetStream(NewStream(other))
	assert.Equal(t, 0, track.ObserverCount())
	assert.Equal(t, 1, other.ObserverCount())

	m.Close()
	assert.Equal(t, 0, other.ObserverCount())
	assert.Nil(t, m.Track())
}

func TestMonitor_DispatchesThroughOwner(t *testing.T) {
	track := NewLocalTrack("mic", testFormat)
	var queued []func()
	m := NewMonitor(func(fn func()) { queued = append(queued, fn) }, nil)
	m.SetStream(NewStream(track))

	track.SetMuted(true)
	assert.False(t, m.Health().Muted, "health must not change before dispatch")
	require.Len(t, queued, 1)

	queued[0]()
	assert.True(t, m.Health().Muted)
}

func TestMonitor_IgnoresEventsFromDetachedTrack(t *testing.T) {
	old := NewLocalTrack("old", testFormat)
	var queued []func()
	m := NewMonitor(func(fn func()) { queued = append(queued, fn) }, nil)
	m.SetStream(NewStream(old))

	old.SetMuted(true)
	m.SetStream(NewStream(NewLocalTrack("new", testFormat)))
	for _, fn := range queued {
		fn()
	}
	assert.False(t, m.Health().Muted)
}

func TestChooseAlert_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		disabled bool
		health   Health
		want     AlertKind
		unmute   bool
	}{
		{"disabled wins", true, Health{}, AlertDisabled, false},
		{"no track", false, Health{}, AlertNoTrack, false},
		{"two tracks beat muted", false, Health{TrackPresent: true, TrackCount: 2, Muted: true}, AlertTrackCount, false},
		{"muted", false, Health{TrackPresent: true, TrackCount: 1, Muted: true, Enabled: false}, AlertMuted, false},
		{"manually disabled", false, Health{TrackPresent: true, TrackCount: 1, Enabled: false, Ended: true}, AlertTrackDisabled, true},
		{"ended", false, Health{TrackPresent: true, TrackCount: 1, Enabled: true, Ended: true}, AlertEnded, false},
		{"healthy", false, Health{TrackPresent: true, TrackCount: 1, Enabled: true}, AlertNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := ChooseAlert(tt.disabled, tt.health)
			assert.Equal(t, tt.want, alert.Kind)
			assert.Equal(t, tt.unmute, alert.Unmute)
			assert.Equal(t, tt.want != AlertNone, alert.Active())
		})
	}
}
