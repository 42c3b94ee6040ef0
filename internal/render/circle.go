package render

import "github.com/oszuidwest/zwfm-meter/internal/canvas"

const (
	circleMargin    = 10
	circleLineWidth = 2
)

// Circle draws a disc that grows with the volume inside a fixed outline.
type Circle struct {
	cfg     ShapeConfig
	opts    Options
	surface canvas.Surface
	level   level
}

func newCircle(cfg ShapeConfig, opts Options, s canvas.Surface) *Circle {
	return &Circle{cfg: cfg, opts: opts, surface: s, level: level{decay: opts.DecayFactor}}
}

// Start resets the render state.
func (c *Circle) Start() { c.level.reset() }

// Stop resets the render state and paints an idle frame.
func (c *Circle) Stop() {
	c.level.reset()
	c.paint(0, false)
}

// Draw paints the effective volume.
func (c *Circle) Draw(volume float64, stale bool) {
	c.paint(c.level.next(volume, stale), stale)
}

// State returns the current render state.
func (c *Circle) State() State { return c.level.state }

// Config returns the shape config.
func (c *Circle) Config() ShapeConfig { return c.cfg }

// BaseRadius returns the outline radius for the configured size.
func (c *Circle) BaseRadius() float64 {
	w, h := float64(c.cfg.Width), float64(c.cfg.Height)
	return max(min(w, h)/2-circleMargin, 1)
}

func (c *Circle) paint(vol float64, stale bool) {
	c.surface.Clear()

	cx, cy := float64(c.cfg.Width)/2, float64(c.cfg.Height)/2
	base := c.BaseRadius()

	switch {
	case stale:
		c.surface.FillCircle(cx, cy, base, canvas.Amber)
	case vol > 0:
		fill := canvas.Green
		if vol >= c.opts.TooLoud {
			fill = canvas.Red
		}
		c.surface.FillCircle(cx, cy, base*vol, fill)
	}
	c.surface.StrokeCircle(cx, cy, base, circleLineWidth, canvas.Outline)
	canvas.Commit(c.surface)
}
