package canvas

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const cellBlock = "█"

// Terminal is a Surface that maps a virtual pixel area onto a grid of
// character cells. A cell takes the colour of the last shape covering its centre.
type Terminal struct {
	width, height int
	cols, rows    int
	cells         []color.RGBA
	styles        map[color.RGBA]lipgloss.Style
}

// NewTerminal returns a surface of width x height virtual pixels drawn into cols x rows cells.
func NewTerminal(width, height, cols, rows int) (*Terminal, error) {
	if width <= 0 || height <= 0 || cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: invalid terminal geometry %dx%d in %dx%d cells", ErrNoContext, width, height, cols, rows)
	}
	return &Terminal{
		width:  width,
		height: height,
		cols:   cols,
		rows:   rows,
		cells:  make([]color.RGBA, cols*rows),
		styles: make(map[color.RGBA]lipgloss.Style),
	}, nil
}

// Size returns the virtual pixel dimensions.
func (t *Terminal) Size() (int, int) {
	return t.width, t.height
}

// Clear empties every cell.
func (t *Terminal) Clear() {
	clear(t.cells)
}

// FillRect colours the cells whose centre lies inside the rectangle.
func (t *Terminal) FillRect(x, y, w, h float64, c color.RGBA) {
	t.each(func(px, py float64) bool {
		return px >= x && px < x+w && py >= y && py < y+h
	}, c)
}

// FillCircle colours the cells whose centre lies inside the disc.
func (t *Terminal) FillCircle(cx, cy, r float64, c color.RGBA) {
	t.each(func(px, py float64) bool {
		return math.Hypot(px-cx, py-cy) <= r
	}, c)
}

// StrokeCircle colours the cells whose centre lies on the ring. The ring is at
// least one cell thick so it stays visible at coarse resolutions.
func (t *Terminal) StrokeCircle(cx, cy, r, lineWidth float64, c color.RGBA) {
	cw, ch := t.cellSize()
	half := math.Max(lineWidth, math.Max(cw, ch)) / 2
	t.each(func(px, py float64) bool {
		return math.Abs(math.Hypot(px-cx, py-cy)-r) <= half
	}, c)
}

// At returns the colour of a cell and whether it has been painted.
func (t *Terminal) At(col, row int) (color.RGBA, bool) {
	if col < 0 || col >= t.cols || row < 0 || row >= t.rows {
		return color.RGBA{}, false
	}
	c := t.cells[row*t.cols+col]
	return c, c.A != 0
}

// String renders the grid with one styled block per painted cell.
func (t *Terminal) String() string {
	var b strings.Builder
	for row := range t.rows {
		if row > 0 {
			b.WriteByte('\n')
		}
		// Runs of equal colour share one styled segment.
		for col := 0; col < t.cols; {
			c := t.cells[row*t.cols+col]
			end := col + 1
			for end < t.cols && t.cells[row*t.cols+end] == c {
				end++
			}
			n := end - col
			if c.A == 0 {
				b.WriteString(strings.Repeat(" ", n))
			} else {
				b.WriteString(t.style(c).Render(strings.Repeat(cellBlock, n)))
			}
			col = end
		}
	}
	return b.String()
}

func (t *Terminal) style(c color.RGBA) lipgloss.Style {
	s, ok := t.styles[c]
	if !ok {
		s = lipgloss.NewStyle().Foreground(lipgloss.Color(Hex(c)))
		t.styles[c] = s
	}
	return s
}

func (t *Terminal) cellSize() (float64, float64) {
	return float64(t.width) / float64(t.cols), float64(t.height) / float64(t.rows)
}

func (t *Terminal) each(inside func(px, py float64) bool, c color.RGBA) {
	cw, ch := t.cellSize()
	for row := range t.rows {
		py := (float64(row) + 0.5) * ch
		for col := range t.cols {
			px := (float64(col) + 0.5) * cw
			if inside(px, py) {
				t.cells[row*t.cols+col] = c
			}
		}
	}
}
