package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_FrameRunsOnlyPendingCallbacks(t *testing.T) {
	m := NewManual(epoch)

	var ticks int
	var loop func(time.Time)
	loop = func(time.Time) {
		ticks++
		m.RequestFrame(loop)
	}
	m.RequestFrame(loop)

	assert.Equal(t, 1, m.Frame())
	assert.Equal(t, 1, m.Frame())
	assert.Equal(t, 2, ticks)
	assert.Equal(t, 1, m.PendingFrames())
}

func TestManual_CancelledFrameDoesNotRun(t *testing.T) {
	m := NewManual(epoch)

	ran := false
	h := m.RequestFrame(func(time.Time) { ran = true })
	h.Cancel()
	h.Cancel()

	assert.Equal(t, 0, m.Frame())
	assert.False(t, ran)
}

func TestManual_AdvanceFiresTimersInOrder(t *testing.T) {
	m := NewManual(epoch)

	var order []string
	m.AfterFunc(300*time.Millisecond, func() { order = append(order, "late") })
	m.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "early")
		assert.Equal(t, epoch.Add(100*time.Millisecond), m.Now())
	})
	cancelled := m.AfterFunc(200*time.Millisecond, func() { order = append(order, "cancelled") })
	cancelled.Cancel()

	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"early"}, order)
	assert.Equal(t, 1, m.PendingTimers())

	m.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"early", "late"}, order)
	assert.Equal(t, 0, m.PendingTimers())
}

func TestManual_PostRunsOnFlush(t *testing.T) {
	m := NewManual(epoch)

	var got []int
	m.Post(func() {
		got = append(got, 1)
		m.Post(func() { got = append(got, 2) })
	})
	assert.Empty(t, got)

	m.Flush()
	assert.Equal(t, []int{1, 2}, got)
}

func TestLoop_RunsPostedFramesAndTimers(t *testing.T) {
	l := NewLoop(120)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	defer func() {
		cancel()
		<-l.Done()
	}()

	var frames atomic.Int32
	require.NoError(t, l.Call(func() {
		l.RequestFrame(func(time.Time) { frames.Add(1) })
	}))
	require.Eventually(t, func() bool { return frames.Load() == 1 }, time.Second, 5*time.Millisecond)

	var fired atomic.Bool
	l.AfterFunc(10*time.Millisecond, func() { fired.Store(true) })
	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)

	var skipped atomic.Bool
	h := l.AfterFunc(20*time.Millisecond, func() { skipped.Store(true) })
	h.Cancel()
	time.Sleep(60 * time.Millisecond)
	assert.False(t, skipped.Load())
}

func TestLoop_CancelledFrameIsDropped(t *testing.T) {
	l := NewLoop(120)
	h := l.RequestFrame(func(time.Time) {})
	assert.Equal(t, 1, l.PendingFrames())
	h.Cancel()
	assert.Equal(t, 0, l.PendingFrames())
}

func TestLoop_FrameCancelledWithinRefreshIsSkipped(t *testing.T) {
	l := NewLoop(120)

	var order []string
	var later Handle
	l.RequestFrame(func(time.Time) {
		order = append(order, "first")
		later.Cancel()
		l.RequestFrame(func(time.Time) { order = append(order, "next refresh") })
	})
	later = l.RequestFrame(func(time.Time) { order = append(order, "cancelled") })
	l.RequestFrame(func(time.Time) { order = append(order, "last") })

	l.runFrames(epoch)
	assert.Equal(t, []string{"first", "last"}, order)
	assert.Equal(t, 1, l.PendingFrames())

	l.runFrames(epoch)
	assert.Equal(t, []string{"first", "last", "next refresh"}, order)
	assert.Equal(t, 0, l.PendingFrames())
}

func TestLoop_CallAfterStop(t *testing.T) {
	l := NewLoop(60)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	<-l.Done()

	assert.ErrorIs(t, l.Call(func() {}), ErrLoopStopped)
}
