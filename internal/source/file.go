package source

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// DefaultChunk is how much audio a File source writes per tick.
const DefaultChunk = 20 * time.Millisecond

// FileOptions configure a File source.
type FileOptions struct {
	// Loop restarts the file at end of stream.
	Loop bool
	// Chunk is the PCM duration written per tick. Zero uses DefaultChunk.
	Chunk time.Duration
}

// File plays an audio file as PCM in real time.
type File struct {
	path   string
	open   openFunc
	format media.Format
	opts   FileOptions
}

// NewFile opens path, reads its format and returns a source that decodes it.
func NewFile(path string, opts FileOptions) (*File, error) {
	open, err := decoderFor(path)
	if err != nil {
		return nil, err
	}
	if opts.Chunk <= 0 {
		opts.Chunk = DefaultChunk
	}

	f := &File{path: path, open: open, opts: opts}
	fh, dec, err := f.openDecoder()
	if err != nil {
		return nil, err
	}
	defer closeFile(fh)

	f.format = media.Format{SampleRate: dec.SampleRate(), Channels: dec.Channels()}
	if f.format.SampleRate <= 0 || f.format.Channels <= 0 {
		return nil, ErrInvalidFile
	}
	return f, nil
}

// Name returns the file's base name.
func (f *File) Name() string {
	return filepath.Base(f.path)
}

// Format returns the decoded PCM format.
func (f *File) Format() media.Format {
	return f.format
}

// Produce decodes the file into w, paced to real time. It returns nil when
// ctx is cancelled and io.EOF when a non-looping file has been played.
func (f *File) Produce(ctx context.Context, w io.Writer) error {
	ticker := time.NewTicker(f.opts.Chunk)
	defer ticker.Stop()

	for {
		if err := f.playOnce(ctx, w, ticker.C); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if !f.opts.Loop {
			return io.EOF
		}
		slog.Debug("audio file looped", "file", f.Name())
	}
}

func (f *File) playOnce(ctx context.Context, w io.Writer, tick <-chan time.Time) error {
	fh, dec, err := f.openDecoder()
	if err != nil {
		return err
	}
	defer closeFile(fh)

	frames := max(int(int64(f.format.SampleRate)*int64(f.opts.Chunk)/int64(time.Second)), 1)
	samples := make([]float32, frames*f.format.Channels)
	pcm := make([]byte, len(samples)*2)

	for {
		n, err := fill(dec, samples)
		if n > 0 {
			if _, werr := w.Write(encodeS16LE(pcm, samples[:n])); werr != nil {
				return util.WrapError("write pcm", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return util.WrapError("decode "+f.Name(), err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}

func (f *File) openDecoder() (*os.File, decoder, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, nil, util.WrapError("open audio file", err)
	}
	dec, err := f.open(fh)
	if err != nil {
		closeFile(fh)
		return nil, nil, err
	}
	return fh, dec, nil
}

// fill reads until dst is full or the decoder stops.
func fill(dec decoder, dst []float32) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := dec.ReadSamples(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// encodeS16LE converts samples into dst as interleaved signed 16-bit PCM.
func encodeS16LE(dst []byte, samples []float32) []byte {
	dst = dst[:len(samples)*2]
	for i, s := range samples {
		v := math.Round(float64(min(max(s, -1), 1)) * 32767)
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16(v)))
	}
	return dst
}

func closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Warn("failed to close audio file", "error", err)
	}
}
