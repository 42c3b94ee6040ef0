package canvas

import (
	"fmt"
	"image/color"
	"slices"
	"sync"
)

// OpKind identifies a drawing operation.
type OpKind string

// Drawing operations.
const (
	OpClear  OpKind = "clear"
	OpRect   OpKind = "rect"
	OpCircle OpKind = "circle"
	OpRing   OpKind = "ring"
)

// Op is one recorded drawing operation. Field use depends on Kind:
// rects use X, Y, W, H; circles and rings use X, Y as the centre, R and (rings) LineWidth.
type Op struct {
	Kind      OpKind  `json:"op"`
	X         float64 `json:"x,omitzero"`
	Y         float64 `json:"y,omitzero"`
	W         float64 `json:"w,omitzero"`
	H         float64 `json:"h,omitzero"`
	R         float64 `json:"r,omitzero"`
	LineWidth float64 `json:"lw,omitzero"`
	Color     string  `json:"color,omitzero"`
}

// Frame is a complete recorded frame.
type Frame struct {
	Version uint64 `json:"version"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Ops     []Op   `json:"ops"`
}

// DisplayList is a Surface that records drawing operations so another
// process (a browser canvas, a PNG encoder) can replay them. Operations are
// painted into a pending frame; Commit, or the Clear that starts the next
// frame, publishes it under a new version. Snapshot only ever returns
// published frames. It is safe for concurrent use.
type DisplayList struct {
	width, height int

	mu      sync.Mutex
	pending []Op
	frame   Frame
}

// NewDisplayList returns a display list for a width x height surface.
func NewDisplayList(width, height int) (*DisplayList, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrNoContext, width, height)
	}
	return &DisplayList{
		width:  width,
		height: height,
		frame:  Frame{Width: width, Height: height},
	}, nil
}

// Size returns the surface dimensions.
func (d *DisplayList) Size() (int, int) {
	return d.width, d.height
}

// Clear publishes any pending frame and starts a new one.
func (d *DisplayList) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commitLocked()
	d.pending = append(d.pending, Op{Kind: OpClear})
}

// FillRect records a filled rectangle.
func (d *DisplayList) FillRect(x, y, w, h float64, c color.RGBA) {
	d.record(Op{Kind: OpRect, X: x, Y: y, W: w, H: h, Color: Hex(c)})
}

// FillCircle records a filled disc.
func (d *DisplayList) FillCircle(cx, cy, r float64, c color.RGBA) {
	d.record(Op{Kind: OpCircle, X: cx, Y: cy, R: r, Color: Hex(c)})
}

// StrokeCircle records a circle outline.
func (d *DisplayList) StrokeCircle(cx, cy, r, lineWidth float64, c color.RGBA) {
	d.record(Op{Kind: OpRing, X: cx, Y: cy, R: r, LineWidth: lineWidth, Color: Hex(c)})
}

// Commit publishes the pending frame. It is a no-op when nothing was painted.
func (d *DisplayList) Commit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commitLocked()
}

// Snapshot returns a copy of the last published frame.
func (d *DisplayList) Snapshot() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.frame
	f.Ops = slices.Clone(d.frame.Ops)
	return f
}

// Version returns the number of frames published so far.
func (d *DisplayList) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame.Version
}

func (d *DisplayList) record(op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, op)
}

// commitLocked swaps the pending ops in as the published frame.
func (d *DisplayList) commitLocked() {
	if len(d.pending) == 0 {
		return
	}
	d.frame.Ops = d.pending
	d.frame.Version++
	d.pending = make([]Op, 0, len(d.frame.Ops))
}

// Replay paints ops onto dst.
func Replay(dst Surface, ops []Op) error {
	for i, op := range ops {
		if op.Kind == OpClear {
			dst.Clear()
			continue
		}
		c, err := ParseHex(op.Color)
		if err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		switch op.Kind {
		case OpRect:
			dst.FillRect(op.X, op.Y, op.W, op.H, c)
		case OpCircle:
			dst.FillCircle(op.X, op.Y, op.R, c)
		case OpRing:
			dst.StrokeCircle(op.X, op.Y, op.R, op.LineWidth, c)
		default:
			return fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}
	return nil
}
