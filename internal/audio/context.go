package audio

import (
	"sync/atomic"

	"github.com/oszuidwest/zwfm-meter/internal/media"
)

// PCMContext creates PCMAnalyser nodes fed by the first audio track of a
// stream that delivers PCM.
type PCMContext struct {
	opts   AnalyserOptions
	active atomic.Int64
}

// NewPCMContext returns a context whose analysers use opts.
func NewPCMContext(opts AnalyserOptions) *PCMContext {
	return &PCMContext{opts: opts}
}

// NewAnalyser connects a new analyser to stream.
func (c *PCMContext) NewAnalyser(stream *media.Stream) (Node, error) {
	for _, t := range stream.AudioTracks() {
		src, ok := t.(media.PCMSource)
		if !ok {
			continue
		}
		a := NewPCMAnalyser(src.Format(), c.opts)
		remove := src.AddSink(a)
		c.active.Add(1)
		a.detach = func() {
			remove()
			c.active.Add(-1)
		}
		return a, nil
	}
	return nil, ErrNoAudioTrack
}

// ActiveNodes returns how many analysers are currently connected.
func (c *PCMContext) ActiveNodes() int {
	return int(c.active.Load())
}
