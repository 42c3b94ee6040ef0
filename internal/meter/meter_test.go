package meter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/render"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeAnalyser reports a constant frequency level.
type fakeAnalyser struct {
	level byte
	fresh bool
	reads int
}

func (f *fakeAnalyser) FrequencyBinCount() int { return 4 }
func (f *fakeAnalyser) FFTSize() int           { return 8 }
func (f *fakeAnalyser) ByteFrequencyData(dst []byte) {
	f.reads++
	for i := range dst {
		dst[i] = f.level
	}
}
func (f *fakeAnalyser) ByteTimeDomainData(dst []byte) {
	for i := range dst {
		dst[i] = 128
	}
}
func (f *fakeAnalyser) Fresh() bool { return f.fresh }

type draw struct {
	volume float64
	stale  bool
}

// recordingStrategy records calls instead of painting.
type recordingStrategy struct {
	draws  []draw
	starts int
	stops  int
}

func (r *recordingStrategy) Start() { r.starts++ }
func (r *recordingStrategy) Stop()  { r.stops++ }
func (r *recordingStrategy) Draw(v float64, stale bool) {
	r.draws = append(r.draws, draw{v, stale})
}
func (r *recordingStrategy) State() render.State        { return render.State{} }
func (r *recordingStrategy) Config() render.ShapeConfig { return render.ShapeConfig{} }

func (r *recordingStrategy) last() draw { return r.draws[len(r.draws)-1] }

type mockStrategy struct{ mock.Mock }

func (m *mockStrategy) Start()                     { m.Called() }
func (m *mockStrategy) Stop()                      { m.Called() }
func (m *mockStrategy) Draw(v float64, stale bool) { m.Called(v, stale) }
func (m *mockStrategy) State() render.State        { return render.State{} }
func (m *mockStrategy) Config() render.ShapeConfig { return render.ShapeConfig{} }

func TestAnimator_StartIsIdempotent(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	a := NewAnimator(sched, &fakeAnalyser{level: 64, fresh: true}, true, strat, Options{})

	require.True(t, a.Running())
	require.Len(t, strat.draws, 1, "first frame is drawn synchronously")
	assert.Equal(t, 0.5, strat.last().volume)
	assert.Equal(t, 1, sched.PendingFrames())

	a.Start()
	a.Start()
	assert.Equal(t, 1, sched.PendingFrames(), "only one frame loop may be live")
	assert.Equal(t, 1, strat.starts)
	assert.Len(t, strat.draws, 1)

	assert.Equal(t, 1, sched.Frame())
	assert.Len(t, strat.draws, 2)
	assert.Equal(t, uint64(2), a.Frames())
}

func TestAnimator_DisabledDoesNotStart(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	a := NewAnimator(sched, &fakeAnalyser{}, false, strat, Options{})

	a.Start()
	assert.False(t, a.Running())
	assert.Empty(t, strat.draws)
	assert.Equal(t, 0, sched.PendingFrames())

	a.Enable(true)
	assert.True(t, a.Running())
	a.Enable(true)
	assert.Equal(t, 1, strat.starts)

	a.Enable(false)
	assert.False(t, a.Running())
	assert.Equal(t, 0, sched.PendingFrames())
	assert.Equal(t, 0, sched.Frame())
}

func TestAnimator_StopCancelsFrameAndDrawsIdle(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &mockStrategy{}
	strat.On("Start").Once()
	strat.On("Draw", 0.25, false).Twice()
	strat.On("Stop").Twice()

	a := NewAnimator(sched, &fakeAnalyser{level: 32, fresh: true}, true, strat, Options{})
	var stops int
	a.On(EventStop, func() { stops++ })

	sched.Frame()
	a.Stop()
	a.Stop()

	assert.False(t, a.Running())
	assert.Equal(t, 1, stops, "stop is emitted once per run")
	assert.Equal(t, 0, sched.PendingFrames())
	assert.Equal(t, 0, sched.PendingTimers(), "watchdog timer is cancelled")
	assert.Equal(t, 0, sched.Frame())
	strat.AssertExpectations(t)
}

func TestAnimator_StoppedFrameInFlightDoesNotDraw(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	a := NewAnimator(sched, &fakeAnalyser{fresh: true}, true, strat, Options{})

	// A tick that was already dispatched must notice the stop and exit.
	a.stopping = true
	a.tick(sched.Now())
	assert.Len(t, strat.draws, 1)
	assert.Nil(t, a.frame)
}

func TestAnimator_WatchdogForcesStaleFrame(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	an := &fakeAnalyser{level: 128, fresh: false}
	a := NewAnimator(sched, an, true, strat, Options{WatchdogPeriod: time.Second})

	var stale, recovered int
	a.On(EventStale, func() { stale++ })
	a.On(EventRecovered, func() { recovered++ })

	sched.Advance(time.Second)
	assert.False(t, a.Stale(), "exactly one period is not yet stale")

	sched.Advance(500 * time.Millisecond)
	require.True(t, a.Stale())
	assert.Equal(t, 1, stale)
	assert.Equal(t, draw{0, true}, strat.last())

	sched.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, stale, "stale is reported once per expiry")

	sched.Frame()
	assert.True(t, strat.last().stale, "frames stay stale without fresh data")

	an.fresh = true
	sched.Frame()
	assert.False(t, a.Stale())
	assert.Equal(t, 1, recovered)
	assert.Equal(t, draw{1, false}, strat.last())
}

func TestAnimator_StaleFramesDecayOncePerFrame(t *testing.T) {
	sched := clock.NewManual(epoch)
	list, err := canvas.NewDisplayList(60, 50)
	require.NoError(t, err)
	strat, err := render.New(render.ShapeConfig{Shape: render.ShapeFlat, BucketCount: 5, Width: 60, Height: 50},
		render.DefaultOptions(), list)
	require.NoError(t, err)

	an := &fakeAnalyser{level: 128, fresh: true}
	a := NewAnimator(sched, an, true, strat, Options{WatchdogPeriod: time.Second})
	require.Equal(t, 1.0, strat.State().PreviousVolume)

	an.level, an.fresh = 0, false
	sched.Advance(1500 * time.Millisecond)
	require.True(t, a.Stale())
	sched.Advance(500 * time.Millisecond)
	sched.Frame()
	sched.Advance(500 * time.Millisecond)
	sched.Frame()

	assert.Equal(t, uint64(6), a.Frames())
	assert.InDelta(t, math.Pow(render.DefaultDecayFactor, float64(a.Frames()-1)), strat.State().PreviousVolume, 1e-9)
	assert.Equal(t, 1, sched.PendingFrames(), "a forced stale frame replaces the pending one")
	assert.Equal(t, a.Frames(), list.Version())
}

func TestAnimator_NilAnalyserDrawsSilenceAndGoesStale(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	a := NewAnimator(sched, nil, true, strat, Options{WatchdogPeriod: 200 * time.Millisecond})

	assert.Equal(t, draw{0, false}, strat.last())
	sched.Advance(300 * time.Millisecond)
	assert.True(t, a.Stale())
	sched.Frame()
	assert.Equal(t, draw{0, true}, strat.last())
	assert.Equal(t, 1, sched.PendingFrames(), "the loop keeps running without an analyser")
}

func TestAnimator_UpdateAnalyser(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	first := &fakeAnalyser{level: 32, fresh: true}
	a := NewAnimator(sched, first, true, strat, Options{})

	var events []Event
	a.On(EventStart, func() { events = append(events, EventStart) })
	a.On(EventStop, func() { events = append(events, EventStop) })

	second := &fakeAnalyser{level: 128, fresh: true}
	a.UpdateAnalyser(second)

	assert.Equal(t, []Event{EventStop, EventStart}, events)
	assert.Same(t, second, a.Analyser())
	assert.Equal(t, 1.0, strat.last().volume)
	assert.Equal(t, 1, sched.PendingFrames())
	assert.Equal(t, 1, strat.stops)

	sched.Frame()
	assert.Equal(t, 1, first.reads, "old analyser is no longer read")
}

func TestAnimator_UpdateAnalyserWhileDisabled(t *testing.T) {
	sched := clock.NewManual(epoch)
	strat := &recordingStrategy{}
	a := NewAnimator(sched, nil, false, strat, Options{})

	a.UpdateAnalyser(&fakeAnalyser{fresh: true})
	assert.False(t, a.Running())
	assert.Equal(t, 0, sched.PendingFrames())
}

func TestAnimator_ObserverRemoval(t *testing.T) {
	sched := clock.NewManual(epoch)
	a := NewAnimator(sched, nil, false, &recordingStrategy{}, Options{})

	var calls int
	remove := a.On(EventStart, func() { calls++ })
	a.Enable(true)
	a.Enable(false)
	remove()
	a.Enable(true)
	assert.Equal(t, 1, calls)
}

func TestWatchdog_Lifecycle(t *testing.T) {
	sched := clock.NewManual(epoch)
	var expiries []bool
	w := NewWatchdog(sched, 0, func(first bool) { expiries = append(expiries, first) })
	assert.Equal(t, DefaultWatchdogPeriod, w.Period())

	w.Start()
	w.Start()
	assert.Equal(t, 1, sched.PendingTimers())

	sched.Advance(900 * time.Millisecond)
	assert.False(t, w.Feed(), "feeding a healthy watchdog is not a recovery")

	sched.Advance(1600 * time.Millisecond)
	assert.True(t, w.Expired())
	assert.Equal(t, []bool{true, false}, expiries)

	assert.True(t, w.Feed())
	assert.False(t, w.Expired())

	sched.Advance(1600 * time.Millisecond)
	assert.True(t, w.Expired())

	w.Stop()
	assert.False(t, w.Expired())
	assert.False(t, w.Running())
	assert.Equal(t, 0, sched.PendingTimers())
}

func TestWatchdog_StopFromExpiryCallback(t *testing.T) {
	sched := clock.NewManual(epoch)
	var w *Watchdog
	w = NewWatchdog(sched, 100*time.Millisecond, func(bool) { w.Stop() })
	w.Start()

	sched.Advance(200 * time.Millisecond)
	assert.False(t, w.Running())
	assert.Equal(t, 0, sched.PendingTimers())
}
