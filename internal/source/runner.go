// Package source produces PCM for a media track from an audio input device
// or an audio file, restarting failed inputs with exponential backoff.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/types"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// Sentinel errors for runner operations.
var (
	ErrAlreadyRunning  = errors.New("source already running")
	ErrShutdownTimeout = errors.New("source shutdown timeout")
)

// Producer writes PCM in its Format to w until ctx is cancelled or the input
// stops. Returning io.EOF means the input ended for good; any other return
// is retried.
type Producer interface {
	Name() string
	Format() media.Format
	Produce(ctx context.Context, w io.Writer) error
}

// RunnerOptions tune the retry policy. Zero fields take the defaults from types.
type RunnerOptions struct {
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	MaxRetries       int
	SuccessThreshold time.Duration
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.InitialDelay <= 0 {
		o.InitialDelay = types.InitialRetryDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = types.MaxRetryDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = types.MaxRetries
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = types.SuccessThreshold
	}
	return o
}

// Runner feeds a LocalTrack from a Producer. While the producer is not
// delivering, the track is muted.
type Runner struct {
	producer Producer
	track    *media.LocalTrack
	opts     RunnerOptions
	restarts *restartDelay

	mu         sync.RWMutex
	state      types.SourceState
	lastError  string
	retryCount int
	exhausted  bool
	startTime  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewRunner returns a stopped runner.
func NewRunner(p Producer, track *media.LocalTrack, opts RunnerOptions) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		producer: p,
		track:    track,
		opts:     opts,
		restarts: newRestartDelay(opts.InitialDelay, opts.MaxDelay),
		state:    types.StateStopped,
	}
}

// Track returns the track being fed.
func (r *Runner) Track() *media.LocalTrack {
	return r.track
}

// Start begins producing in the background.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == types.StateRunning || r.state == types.StateStarting {
		return ErrAlreadyRunning
	}

	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.state = types.StateStarting
	r.cancel = cancel
	r.done = make(chan struct{})
	r.retryCount = 0
	r.exhausted = false
	r.lastError = ""
	r.restarts.reset()

	go r.loop(ctx, r.done)
	return nil
}

// Stop cancels the producer and waits for it to exit.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.state == types.StateStopped || r.state == types.StateStopping {
		r.mu.Unlock()
		return nil
	}
	r.state = types.StateStopping
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()

	var err error
	select {
	case <-done:
		slog.Info("audio source stopped", "source", r.producer.Name())
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("audio source did not stop in time", "source", r.producer.Name())
		err = ErrShutdownTimeout
	}

	r.mu.Lock()
	r.state = types.StateStopped
	r.cancel = nil
	r.mu.Unlock()
	r.track.SetMuted(true)

	return err
}

// Restart stops and starts the runner.
func (r *Runner) Restart() error {
	if err := r.Stop(); err != nil {
		return util.WrapError("stop source", err)
	}
	return r.Start()
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() types.SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := types.SourceStatus{
		State:      r.state,
		Name:       r.producer.Name(),
		LastError:  r.lastError,
		RetryCount: r.retryCount,
		MaxRetries: r.opts.MaxRetries,
		Exhausted:  r.exhausted,
	}
	if r.state == types.StateRunning {
		st.Uptime = time.Since(r.startTime).Truncate(time.Second).String()
	}
	return st
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		r.mu.Lock()
		if ctx.Err() != nil {
			r.mu.Unlock()
			return
		}
		r.state = types.StateRunning
		r.startTime = time.Now()
		r.mu.Unlock()
		r.track.SetMuted(false)

		startTime := time.Now()
		err := r.producer.Produce(ctx, r.track)
		runDuration := time.Since(startTime)

		r.track.SetMuted(true)
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, io.EOF) {
			slog.Info("audio source ended", "source", r.producer.Name())
			r.mu.Lock()
			r.state = types.StateStopped
			r.mu.Unlock()
			r.track.Stop()
			return
		}

		r.mu.Lock()
		if err != nil {
			r.lastError = err.Error()
			slog.Error("audio source error", "source", r.producer.Name(), "error", err)

			if runDuration >= r.opts.SuccessThreshold {
				r.retryCount = 0
				r.restarts.reset()
			} else {
				r.retryCount++
			}

			if r.retryCount >= r.opts.MaxRetries {
				slog.Error("audio source failed, giving up", "source", r.producer.Name(), "attempts", r.opts.MaxRetries)
				r.state = types.StateStopped
				r.exhausted = true
				r.lastError = fmt.Sprintf("stopped after %d failed attempts: %s", r.opts.MaxRetries, err)
				r.mu.Unlock()
				return
			}
		} else {
			r.retryCount = 0
			r.restarts.reset()
		}

		r.state = types.StateStarting
		delay := r.restarts.take()
		attempt := r.retryCount + 1
		r.mu.Unlock()

		slog.Info("audio source stopped, waiting before restart",
			"delay", delay, "attempt", attempt, "max_retries", r.opts.MaxRetries)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
