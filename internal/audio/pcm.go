package audio

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"sync"

	"github.com/smallnest/ringbuffer"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/oszuidwest/zwfm-meter/internal/media"
)

// Analyser defaults.
const (
	DefaultFFTSize     = 2048
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0

	// inboxSeconds is how much PCM the inbox buffers between reads.
	inboxSeconds = 2
)

// AnalyserOptions configures a PCMAnalyser. Zero fields take the defaults.
type AnalyserOptions struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

func (o AnalyserOptions) withDefaults() AnalyserOptions {
	if o.FFTSize <= 0 || o.FFTSize&(o.FFTSize-1) != 0 {
		o.FFTSize = DefaultFFTSize
	}
	if o.Smoothing <= 0 || o.Smoothing >= 1 {
		o.Smoothing = DefaultSmoothing
	}
	if o.MinDecibels >= o.MaxDecibels {
		o.MinDecibels, o.MaxDecibels = DefaultMinDecibels, DefaultMaxDecibels
	}
	return o
}

// PCMAnalyser analyses interleaved S16LE PCM. Producers write from any
// goroutine; reads drain the inbox into a sliding mono window of FFTSize samples.
type PCMAnalyser struct {
	format media.Format
	opts   AnalyserOptions
	inbox  *ringbuffer.RingBuffer

	mu       sync.Mutex
	window   []float64
	pending  []byte
	scratch  []byte
	fresh    bool
	fft      *fourier.FFT
	seq      []float64
	coeffs   []complex128
	smoothed []float64
	detach   func()
	once     sync.Once
	dropped  int
}

// NewPCMAnalyser returns an analyser for PCM in the given format.
func NewPCMAnalyser(format media.Format, opts AnalyserOptions) *PCMAnalyser {
	opts = opts.withDefaults()
	if format.Channels <= 0 {
		format.Channels = 1
	}
	if format.SampleRate <= 0 {
		format.SampleRate = 48000
	}
	n := opts.FFTSize
	return &PCMAnalyser{
		format:   format,
		opts:     opts,
		inbox:    ringbuffer.New(format.SampleRate * format.Channels * 2 * inboxSeconds),
		window:   make([]float64, n),
		fft:      fourier.NewFFT(n),
		seq:      make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
		smoothed: make([]float64, n/2),
	}
}

// Write queues PCM for analysis. Chunks that do not fit are dropped whole
// so frames stay aligned.
func (a *PCMAnalyser) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if a.inbox.Free() < len(p) {
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		return len(p), nil
	}
	if _, err := a.inbox.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// FrequencyBinCount returns FFTSize/2.
func (a *PCMAnalyser) FrequencyBinCount() int { return a.opts.FFTSize / 2 }

// FFTSize returns the analysis window length in samples.
func (a *PCMAnalyser) FFTSize() int { return a.opts.FFTSize }

// Format returns the PCM format being analysed.
func (a *PCMAnalyser) Format() media.Format { return a.format }

// Fresh reports whether the most recent read consumed new PCM.
func (a *PCMAnalyser) Fresh() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fresh
}

// Dropped returns how many chunks were discarded because the inbox was full.
func (a *PCMAnalyser) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// ByteTimeDomainData copies the newest samples into dst as 128 + s*128.
func (a *PCMAnalyser) ByteTimeDomainData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drain()

	src := a.window
	if len(dst) < len(src) {
		src = src[len(src)-len(dst):]
	}
	for i, s := range src {
		dst[i] = toByte(byteCentre + s*byteCentre)
	}
}

// ByteFrequencyData computes a smoothed, windowed spectrum of the current
// window and copies it into dst scaled from [MinDecibels,MaxDecibels] to [0,255].
func (a *PCMAnalyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drain()

	n := a.opts.FFTSize
	copy(a.seq, a.window)
	window.Blackman(a.seq)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	tau := a.opts.Smoothing
	span := a.opts.MaxDecibels - a.opts.MinDecibels
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		if k >= len(dst) {
			continue
		}
		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		dst[k] = toByte(255 * (db - a.opts.MinDecibels) / span)
	}
}

// Levels measures RMS and peak of the current window without draining the inbox.
func (a *PCMAnalyser) Levels() Levels {
	a.mu.Lock()
	defer a.mu.Unlock()
	return MeasureLevels(a.window)
}

// Disconnect detaches the analyser from its source and discards queued PCM.
func (a *PCMAnalyser) Disconnect() {
	a.once.Do(func() {
		a.mu.Lock()
		detach := a.detach
		a.detach = nil
		a.mu.Unlock()
		if detach != nil {
			detach()
		}
		a.inbox.Reset()
	})
}

// drain moves queued PCM into the window. The caller must hold mu.
func (a *PCMAnalyser) drain() {
	avail := a.inbox.Length()
	if avail == 0 {
		a.fresh = false
		return
	}
	if cap(a.scratch) < avail {
		a.scratch = make([]byte, avail)
	}
	n, err := a.inbox.Read(a.scratch[:avail])
	if err != nil || n == 0 {
		a.fresh = false
		return
	}
	a.fresh = true
	a.pending = append(a.pending, a.scratch[:n]...)

	frameBytes := 2 * a.format.Channels
	frames := len(a.pending) / frameBytes
	if frames == 0 {
		return
	}

	// Only the newest FFTSize frames can survive in the window.
	start := 0
	if frames > len(a.window) {
		start = frames - len(a.window)
	}
	shift := min(frames-start, len(a.window))
	copy(a.window, a.window[shift:])
	pos := len(a.window) - shift
	for f := start; f < frames; f++ {
		a.window[pos] = a.mono(a.pending[f*frameBytes:])
		pos++
	}

	rest := copy(a.pending, a.pending[frames*frameBytes:])
	a.pending = a.pending[:rest]
}

// mono downmixes one interleaved frame to a normalised sample.
func (a *PCMAnalyser) mono(frame []byte) float64 {
	var sum float64
	for ch := range a.format.Channels {
		sum += float64(int16(binary.LittleEndian.Uint16(frame[2*ch:])))
	}
	return sum / float64(a.format.Channels) / MaxSampleValue
}

func toByte(v float64) byte {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
