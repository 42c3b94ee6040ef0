// Package canvas provides the 2D drawing surfaces a meter paints on.
package canvas

import (
	"errors"
	"image/color"
)

// Sentinel errors for surface construction.
var (
	ErrNoSurface = errors.New("cannot get a reference to the drawing surface")
	ErrNoContext = errors.New("2D context not available")
)

// Surface is a minimal 2D drawing context in pixel coordinates with the origin top-left.
type Surface interface {
	Size() (width, height int)
	Clear()
	FillRect(x, y, w, h float64, c color.RGBA)
	FillCircle(cx, cy, r float64, c color.RGBA)
	StrokeCircle(cx, cy, r, lineWidth float64, c color.RGBA)
}

// Committer is a Surface that buffers a frame until it is fully painted.
type Committer interface {
	Commit()
}

// Commit publishes the frame painted on s when s buffers frames.
func Commit(s Surface) {
	if c, ok := s.(Committer); ok {
		c.Commit()
	}
}

// Meter palette.
var (
	Grey    = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	Green   = color.RGBA{R: 0x00, G: 0x80, B: 0x00, A: 0xff}
	Red     = color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}
	Amber   = color.RGBA{R: 0xff, G: 0xa5, B: 0x00, A: 0xff}
	Outline = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
)

// ColorName returns the palette name of c, or its hex form when it is not a palette colour.
func ColorName(c color.RGBA) string {
	switch c {
	case Grey:
		return "grey"
	case Green:
		return "green"
	case Red:
		return "red"
	case Amber:
		return "amber"
	case Outline:
		return "outline"
	default:
		return Hex(c)
	}
}
