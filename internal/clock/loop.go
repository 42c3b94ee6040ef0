package clock

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopStopped is returned by Call once the loop has exited.
var ErrLoopStopped = errors.New("loop stopped")

// taskQueueSize bounds the number of pending posted tasks.
const taskQueueSize = 256

// Loop is a real-time Scheduler backed by one goroutine.
// Post, Call, RequestFrame and AfterFunc are safe for concurrent use.
type Loop struct {
	interval time.Duration
	tasks    chan func()
	done     chan struct{}

	mu      sync.Mutex
	frames  map[uint64]*frameHandle
	nextID  uint64
	running atomic.Bool
}

// NewLoop returns a loop that refreshes at fps frames per second.
func NewLoop(fps int) *Loop {
	return &Loop{
		interval: FrameInterval(fps),
		tasks:    make(chan func(), taskQueueSize),
		done:     make(chan struct{}),
		frames:   make(map[uint64]*frameHandle),
	}
}

// Run processes tasks, frames and timers until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		slog.Warn("clock loop already running")
		return
	}
	defer close(l.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in clock loop", "panic", r)
		}
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		case now := <-ticker.C:
			l.runFrames(now)
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn to run on the loop. Tasks posted after the loop exits are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
		slog.Debug("dropped task posted to stopped loop")
	}
}

// Call runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine itself.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	select {
	case l.tasks <- func() {
		defer close(finished)
		fn()
	}:
	case <-l.done:
		return ErrLoopStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// RequestFrame runs fn at the next ticker refresh.
func (l *Loop) RequestFrame(fn func(time.Time)) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	h := &frameHandle{loop: l, id: l.nextID, fn: fn}
	l.frames[h.id] = h
	return h
}

// AfterFunc runs fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Handle {
	h := &timerHandle{}
	h.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if h.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return h
}

// PendingFrames reports how many frame callbacks are waiting for the next refresh.
func (l *Loop) PendingFrames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// runFrames runs the callbacks registered before this refresh, oldest first.
// Callbacks registered while running wait for the next refresh; callbacks
// cancelled by an earlier callback of the same refresh are skipped.
func (l *Loop) runFrames(now time.Time) {
	l.mu.Lock()
	if len(l.frames) == 0 {
		l.mu.Unlock()
		return
	}
	due := slices.SortedFunc(maps.Values(l.frames), func(a, b *frameHandle) int {
		return cmp.Compare(a.id, b.id)
	})
	l.frames = make(map[uint64]*frameHandle)
	l.mu.Unlock()

	for _, h := range due {
		if h.cancelled.Load() {
			continue
		}
		h.fn(now)
	}
}

type frameHandle struct {
	loop      *Loop
	id        uint64
	fn        func(time.Time)
	cancelled atomic.Bool
}

func (h *frameHandle) Cancel() {
	h.cancelled.Store(true)
	h.loop.mu.Lock()
	defer h.loop.mu.Unlock()
	delete(h.loop.frames, h.id)
}

type timerHandle struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (h *timerHandle) Cancel() {
	h.cancelled.Store(true)
	h.timer.Stop()
}
