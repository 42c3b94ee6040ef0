package source

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// Decoder errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio file format")
	ErrInvalidFile       = errors.New("invalid audio file")
)

// decoder yields interleaved float32 samples in [-1,1].
type decoder interface {
	SampleRate() int
	Channels() int
	// ReadSamples fills dst and returns the number of values written.
	// It returns io.EOF once the stream is exhausted.
	ReadSamples(dst []float32) (int, error)
}

type openFunc func(r io.ReadSeeker) (decoder, error)

var decoders = map[string]openFunc{
	".wav":  openWAV,
	".mp3":  openMP3,
	".ogg":  openOgg,
	".oga":  openOgg,
	".flac": openFLAC,
}

// SupportedExtensions lists the file extensions a File source can decode.
func SupportedExtensions() []string {
	return []string{".flac", ".mp3", ".oga", ".ogg", ".wav"}
}

func decoderFor(path string) (openFunc, error) {
	open, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	return open, nil
}

type wavDecoder struct {
	dec   *wav.Decoder
	buf   *goaudio.IntBuffer
	scale float32
}

func openWAV(r io.ReadSeeker) (decoder, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}

	var scale float32
	switch dec.BitDepth {
	case 16:
		scale = 32768
	case 24:
		scale = 8388608
	case 32:
		scale = 2147483648
	default:
		return nil, ErrUnsupportedFormat
	}

	return &wavDecoder{
		dec:   dec,
		buf:   &goaudio.IntBuffer{Format: dec.Format()},
		scale: scale,
	}, nil
}

func (d *wavDecoder) SampleRate() int { return int(d.dec.SampleRate) }
func (d *wavDecoder) Channels() int   { return int(d.dec.NumChans) }

func (d *wavDecoder) ReadSamples(dst []float32) (int, error) {
	if cap(d.buf.Data) < len(dst) {
		d.buf.Data = make([]int, len(dst))
	}
	d.buf.Data = d.buf.Data[:len(dst)]

	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range d.buf.Data[:n] {
		dst[i] = float32(v) / d.scale
	}
	return n, nil
}

// mp3Channels is fixed: go-mp3 always decodes to stereo.
const mp3Channels = 2

type mp3Decoder struct {
	dec *mp3.Decoder
	buf []byte
}

func openMP3(r io.ReadSeeker) (decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidFile, err)
	}
	return &mp3Decoder{dec: dec}, nil
}

func (d *mp3Decoder) SampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) Channels() int   { return mp3Channels }

func (d *mp3Decoder) ReadSamples(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	d.buf = d.buf[:need]

	n, err := io.ReadFull(d.dec, d.buf)
	samples := n / 2
	if samples == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}
	for i := range samples {
		v := int16(uint16(d.buf[2*i]) | uint16(d.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768
	}
	return samples, nil
}

type oggDecoder struct {
	dec *oggvorbis.Reader
}

func openOgg(r io.ReadSeeker) (decoder, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidFile, err)
	}
	return &oggDecoder{dec: dec}, nil
}

func (d *oggDecoder) SampleRate() int { return d.dec.SampleRate() }
func (d *oggDecoder) Channels() int   { return d.dec.Channels() }

func (d *oggDecoder) ReadSamples(dst []float32) (int, error) {
	n, err := d.dec.Read(dst)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

type flacDecoder struct {
	stream  *flac.Stream
	pending []float32
	scale   float32
}

func openFLAC(r io.ReadSeeker) (decoder, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidFile, err)
	}
	bits := stream.Info.BitsPerSample
	if bits == 0 || bits > 32 {
		return nil, ErrUnsupportedFormat
	}
	return &flacDecoder{
		stream: stream,
		scale:  float32(uint64(1) << (bits - 1)),
	}, nil
}

func (d *flacDecoder) SampleRate() int { return int(d.stream.Info.SampleRate) }
func (d *flacDecoder) Channels() int   { return int(d.stream.Info.NChannels) }

func (d *flacDecoder) ReadSamples(dst []float32) (int, error) {
	for len(d.pending) == 0 {
		frame, err := d.stream.ParseNext()
		if err != nil {
			return 0, err
		}
		channels := len(frame.Subframes)
		for i := range int(frame.BlockSize) {
			for ch := range channels {
				d.pending = append(d.pending, float32(frame.Subframes[ch].Samples[i])/d.scale)
			}
		}
	}
	n := copy(dst, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}
