package canvas

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/vector"
)

// kappa is the control point distance for approximating a quarter circle with a cubic Bézier.
const kappa = 0.5522847498

// Image is a raster Surface backed by an RGBA image.
type Image struct {
	img *image.RGBA
	z   *vector.Rasterizer
}

// NewImage returns a transparent width x height raster surface.
func NewImage(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrNoContext, width, height)
	}
	return &Image{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		z:   vector.NewRasterizer(width, height),
	}, nil
}

// Size returns the image dimensions.
func (m *Image) Size() (int, int) {
	b := m.img.Bounds()
	return b.Dx(), b.Dy()
}

// Clear resets every pixel to transparent.
func (m *Image) Clear() {
	draw.Draw(m.img, m.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// FillRect paints an axis-aligned rectangle.
func (m *Image) FillRect(x, y, w, h float64, c color.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	m.begin()
	m.z.MoveTo(float32(x), float32(y))
	m.z.LineTo(float32(x+w), float32(y))
	m.z.LineTo(float32(x+w), float32(y+h))
	m.z.LineTo(float32(x), float32(y+h))
	m.z.ClosePath()
	m.paint(c)
}

// FillCircle paints a disc.
func (m *Image) FillCircle(cx, cy, r float64, c color.RGBA) {
	if r <= 0 {
		return
	}
	m.begin()
	m.circle(cx, cy, r, false)
	m.paint(c)
}

// StrokeCircle paints a ring of the given line width centred on radius r.
func (m *Image) StrokeCircle(cx, cy, r, lineWidth float64, c color.RGBA) {
	if r <= 0 || lineWidth <= 0 {
		return
	}
	outer := r + lineWidth/2
	inner := math.Max(r-lineWidth/2, 0)
	m.begin()
	m.circle(cx, cy, outer, false)
	if inner > 0 {
		m.circle(cx, cy, inner, true)
	}
	m.paint(c)
}

// RGBA returns the backing image.
func (m *Image) RGBA() *image.RGBA {
	return m.img
}

// EncodePNG writes the current pixels as PNG.
func (m *Image) EncodePNG(w io.Writer) error {
	return png.Encode(w, m.img)
}

func (m *Image) begin() {
	b := m.img.Bounds()
	m.z.Reset(b.Dx(), b.Dy())
	m.z.DrawOp = draw.Over
}

func (m *Image) paint(c color.RGBA) {
	m.z.Draw(m.img, m.img.Bounds(), image.NewUniform(c), image.Point{})
}

// circle adds a closed circular path. Reversed paths wind the other way,
// which cuts a hole when combined with an enclosing circle.
func (m *Image) circle(cx, cy, r float64, reverse bool) {
	k := r * kappa
	pt := func(x, y float64) (float32, float32) { return float32(cx + x), float32(cy + y) }

	type seg struct{ c1x, c1y, c2x, c2y, x, y float64 }
	segs := []seg{
		{r, k, k, r, 0, r},
		{-k, r, -r, k, -r, 0},
		{-r, -k, -k, -r, 0, -r},
		{k, -r, r, -k, r, 0},
	}
	if reverse {
		segs = []seg{
			{r, -k, k, -r, 0, -r},
			{-k, -r, -r, -k, -r, 0},
			{-r, k, -k, r, 0, r},
			{k, r, r, k, r, 0},
		}
	}

	m.z.MoveTo(pt(r, 0))
	for _, s := range segs {
		c1x, c1y := pt(s.c1x, s.c1y)
		c2x, c2y := pt(s.c2x, s.c2y)
		x, y := pt(s.x, s.y)
		m.z.CubeTo(c1x, c1y, c2x, c2y, x, y)
	}
	m.z.ClosePath()
}
