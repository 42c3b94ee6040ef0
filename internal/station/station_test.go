package station

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/events"
	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/source"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// toneProducer writes a 500 Hz tone at 8 kHz mono in 10 ms chunks.
type toneProducer struct{}

func (toneProducer) Name() string         { return "tone" }
func (toneProducer) Format() media.Format { return media.Format{SampleRate: 8000, Channels: 1} }

func (toneProducer) Produce(ctx context.Context, w io.Writer) error {
	chunk := make([]byte, 160)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	phase := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for i := range 80 {
			v := int16(0.5 * 32767 * math.Sin(2*math.Pi*float64(phase)/16))
			binary.LittleEndian.PutUint16(chunk[2*i:], uint16(v))
			phase++
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
}

func toneSource(config.Snapshot, string) (source.Producer, error) {
	return toneProducer{}, nil
}

func newStation(t *testing.T) (*Station, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	require.NoError(t, cfg.Load())

	logPath := filepath.Join(dir, "events.jsonl")
	log, err := events.NewLogger(logPath)
	require.NoError(t, err)

	loop := clock.NewLoop(60)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	s, err := New(cfg, "", loop, log, toneSource)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, s.Stop())
		cancel()
		<-loop.Done()
		assert.NoError(t, log.Close())
	})
	return s, logPath
}

func waitEvent(t *testing.T, ch <-chan types.WSEventResponse, event, detail string) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-ch:
			if ev.Event == event && ev.Detail == detail {
				assert.NotEmpty(t, ev.Timestamp)
				return
			}
		case <-deadline:
			t.Fatalf("no %q event with detail %q", event, detail)
		}
	}
}

func TestStation_MetersTone(t *testing.T) {
	s, logPath := newStation(t)
	evs, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	assert.Equal(t, 1, s.AnalysisNodes())

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Meter.Frames > 10 && st.Levels.Peak > -10
	}, waitFor, tick)

	st := s.Status()
	assert.Equal(t, "status", st.Type)
	assert.True(t, st.Meter.Running)
	assert.Equal(t, config.DefaultShape, st.Meter.Shape)
	assert.Empty(t, st.Alert.Kind)
	assert.Equal(t, types.StateRunning, st.Source.State)
	assert.Equal(t, "tone", st.Track.Label)
	assert.Equal(t, "live", st.Track.ReadyState)

	f := s.Frame()
	assert.Equal(t, config.DefaultWidth, f.Width)
	assert.NotEmpty(t, f.Ops)

	var png bytes.Buffer
	require.NoError(t, s.RenderPNG(&png))
	assert.Equal(t, "\x89PNG", png.String()[:4])

	require.NoError(t, s.SetTrackMuted(true))
	waitEvent(t, evs, string(events.EventAlert), "Audio input halted")
	assert.Equal(t, string(media.AlertMuted), s.Status().Alert.Kind)

	require.NoError(t, s.SetTrackMuted(false))
	require.NoError(t, s.SetTrackEnabled(false))
	require.Eventually(t, func() bool { return s.Status().Alert.Unmute }, waitFor, tick)

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, s.AnalysisNodes())

	logged, err := events.ReadLast(logPath, 100)
	require.NoError(t, err)
	var kinds []events.EventType
	for _, e := range logged {
		kinds = append(kinds, e.Event)
	}
	assert.Contains(t, kinds, events.EventAlert)
	assert.Contains(t, kinds, events.EventStopped)
}

func TestStation_RestartTrackSwapsNode(t *testing.T) {
	s, _ := newStation(t)
	require.ErrorIs(t, s.RestartTrack(), ErrNotRunning)
	require.NoError(t, s.Start())

	first := s.Status().Track.ID
	require.NoError(t, s.RestartTrack())

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Track.ID != first && st.Track.ReadyState == "live" && st.Alert.Kind == ""
	}, waitFor, tick)
	assert.Equal(t, 1, s.AnalysisNodes())
}

func TestStation_StopTrackEnds(t *testing.T) {
	s, _ := newStation(t)
	require.ErrorIs(t, s.StopTrack(), ErrNotRunning)
	require.NoError(t, s.Start())

	require.NoError(t, s.StopTrack())
	require.Eventually(t, func() bool {
		return s.Status().Alert.Kind == string(media.AlertEnded)
	}, waitFor, tick)
	assert.Equal(t, types.StateStopped, s.Status().Source.State)
}

func TestStation_UpdateMeter(t *testing.T) {
	s, _ := newStation(t)
	require.NoError(t, s.Start())

	m := config.DefaultMeter()
	m.Shape = "circle"
	m.Width, m.Height = 120, 120
	require.NoError(t, s.UpdateMeter(m))

	st := s.Status()
	assert.Equal(t, "circle", st.Meter.Shape)
	assert.Equal(t, 120, st.Meter.Width)
	assert.Equal(t, 1, s.AnalysisNodes())
	require.Eventually(t, func() bool { return s.Frame().Width == 120 }, waitFor, tick)

	m.DecayFactor = 0.5
	assert.Error(t, s.UpdateMeter(m))
	assert.Equal(t, "circle", s.Status().Meter.Shape)

	require.NoError(t, s.SetMeterEnabled(false))
	st = s.Status()
	assert.False(t, st.Meter.Running)
	assert.Equal(t, string(media.AlertDisabled), st.Alert.Kind)
}
