package render

import (
	"image/color"

	"github.com/oszuidwest/zwfm-meter/internal/canvas"
)

// Bars draws bucketed bars. Stepped bars rise like a staircase; flat bars use the full height.
type Bars struct {
	cfg     ShapeConfig
	opts    Options
	surface canvas.Surface
	level   level
}

func newBars(cfg ShapeConfig, opts Options, s canvas.Surface) *Bars {
	return &Bars{cfg: cfg, opts: opts, surface: s, level: level{decay: opts.DecayFactor}}
}

// Start resets the render state.
func (b *Bars) Start() { b.level.reset() }

// Stop resets the render state and paints an idle frame.
func (b *Bars) Stop() {
	b.level.reset()
	b.paint(0, false)
}

// Draw paints the effective volume.
func (b *Bars) Draw(volume float64, stale bool) {
	b.paint(b.level.next(volume, stale), stale)
}

// State returns the current render state.
func (b *Bars) State() State { return b.level.state }

// Config returns the shape config.
func (b *Bars) Config() ShapeConfig { return b.cfg }

func (b *Bars) paint(vol float64, stale bool) {
	b.surface.Clear()

	n := b.cfg.BucketCount
	w, h := float64(b.cfg.Width), float64(b.cfg.Height)
	size := 1 / float64(n)
	barW := w / float64(n+1)

	for i := range n {
		ceiling := float64(i+1) / float64(n)
		lower := float64(i) / float64(n)
		x := float64(i) * w / float64(n)

		barH := h
		if b.cfg.Shape == ShapeStepped {
			barH = h * float64(i+1) / float64(n+1)
		}
		y := h - barH

		if stale {
			b.surface.FillRect(x, y, barW, barH, canvas.Amber)
			continue
		}

		b.surface.FillRect(x, y, barW, barH, bucketColour(vol, ceiling, b.opts.TooLoud))
		if vol > lower && vol <= ceiling {
			frac := (vol - lower) / size
			b.surface.FillRect(x, y, frac*barW, barH, fillColour(vol, b.opts.TooLoud))
		}
	}
	canvas.Commit(b.surface)
}

// bucketColour is grey until vol exceeds the ceiling, then green, or red for
// buckets whose ceiling lies above the too-loud threshold.
func bucketColour(vol, ceiling, tooLoud float64) color.RGBA {
	switch {
	case vol <= ceiling:
		return canvas.Grey
	case ceiling > tooLoud:
		return canvas.Red
	default:
		return canvas.Green
	}
}

// fillColour colours the partial fill of the bucket holding vol.
func fillColour(vol, tooLoud float64) color.RGBA {
	if vol > tooLoud {
		return canvas.Red
	}
	return canvas.Green
}
