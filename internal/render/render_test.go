package render

import (
	"errors"
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-meter/internal/canvas"
)

func newList(t *testing.T, w, h int) *canvas.DisplayList {
	t.Helper()
	d, err := canvas.NewDisplayList(w, h)
	require.NoError(t, err)
	return d
}

func newStrategy(t *testing.T, cfg ShapeConfig, d *canvas.DisplayList) Strategy {
	t.Helper()
	s, err := New(cfg, DefaultOptions(), d)
	require.NoError(t, err)
	return s
}

// drawnOps returns the ops of the last frame without the leading clear.
func drawnOps(t *testing.T, d *canvas.DisplayList) []canvas.Op {
	t.Helper()
	ops := d.Snapshot().Ops
	require.NotEmpty(t, ops)
	require.Equal(t, canvas.OpClear, ops[0].Kind)
	return ops[1:]
}

func colours(ops []canvas.Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Color
	}
	return out
}

var (
	grey  = canvas.Hex(canvas.Grey)
	green = canvas.Hex(canvas.Green)
	red   = canvas.Hex(canvas.Red)
	amber = canvas.Hex(canvas.Amber)
)

func TestNew_Validation(t *testing.T) {
	d := newList(t, 10, 10)

	_, err := New(ShapeConfig{Shape: ShapeFlat, BucketCount: 5, Width: 10, Height: 10}, DefaultOptions(), nil)
	assert.ErrorIs(t, err, canvas.ErrNoSurface)

	_, err = New(ShapeConfig{Shape: "triangle", BucketCount: 5, Width: 10, Height: 10}, DefaultOptions(), d)
	assert.ErrorIs(t, err, ErrInvalidShape)
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "shape", verrs[0].Field())

	_, err = New(ShapeConfig{Shape: ShapeStepped, BucketCount: 0, Width: 10, Height: 10}, DefaultOptions(), d)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = New(ShapeConfig{Shape: ShapeStepped, BucketCount: 5, Width: 10, Height: 10}, Options{DecayFactor: 0.5}, d)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	s, err := New(ShapeConfig{Shape: ShapeCircle, BucketCount: 1, Width: 10, Height: 10}, Options{}, d)
	require.NoError(t, err)
	assert.IsType(t, &Circle{}, s)
}

func TestBars_SteppedEndToEnd(t *testing.T) {
	d := newList(t, 60, 50)
	s := newStrategy(t, ShapeConfig{Shape: ShapeStepped, BucketCount: 5, Width: 60, Height: 50}, d)
	s.Start()

	// Draw 1: silence, all grey staircase.
	s.Draw(0, false)
	ops := drawnOps(t, d)
	require.Len(t, ops, 5)
	assert.Equal(t, []string{grey, grey, grey, grey, grey}, colours(ops))
	for i, op := range ops {
		assert.InDelta(t, float64(i)*12, op.X, 1e-9)
		assert.InDelta(t, 10, op.W, 1e-9)
		assert.InDelta(t, 50*float64(i+1)/6, op.H, 1e-9)
		assert.InDelta(t, 50-op.H, op.Y, 1e-9)
	}

	// Draw 2: half volume, two full buckets and a half-filled third.
	s.Draw(0.5, false)
	ops = drawnOps(t, d)
	require.Len(t, ops, 6)
	assert.Equal(t, []string{green, green, grey, green, grey, grey}, colours(ops))
	assert.InDelta(t, 5, ops[3].W, 1e-9)
	assert.InDelta(t, 24, ops[3].X, 1e-9)

	// Draw 3: 0.9 fills four buckets green and half the top bucket red.
	s.Draw(0.9, false)
	ops = drawnOps(t, d)
	require.Len(t, ops, 6)
	assert.Equal(t, []string{green, green, green, green, grey, red}, colours(ops))
	assert.InDelta(t, 5, ops[5].W, 1e-6)

	// Draw 4: silence decays to 0.81, still red.
	s.Draw(0, false)
	assert.InDelta(t, 0.81, s.State().PreviousVolume, 1e-12)
	ops = drawnOps(t, d)
	require.Len(t, ops, 6)
	assert.Equal(t, []string{green, green, green, green, grey, red}, colours(ops))
	assert.InDelta(t, 0.5, ops[5].W, 1e-6)
}

func TestBars_TooLoudBoundary(t *testing.T) {
	cfg := ShapeConfig{Shape: ShapeFlat, BucketCount: 5, Width: 60, Height: 50}

	d := newList(t, 60, 50)
	newStrategy(t, cfg, d).Draw(0.8, false)
	assert.NotContains(t, colours(drawnOps(t, d)), red, "0.8 must not be red")

	d = newList(t, 60, 50)
	newStrategy(t, cfg, d).Draw(0.81, false)
	assert.Contains(t, colours(drawnOps(t, d)), red)
}

func TestBars_RedForEveryBucketAboveThreshold(t *testing.T) {
	d := newList(t, 110, 20)
	s := newStrategy(t, ShapeConfig{Shape: ShapeFlat, BucketCount: 10, Width: 110, Height: 20}, d)
	s.Draw(1, false)

	ops := drawnOps(t, d)
	want := []string{green, green, green, green, green, green, green, green, red, grey, red}
	assert.Equal(t, want, colours(ops))
	for _, op := range ops {
		assert.Equal(t, 0.0, op.Y, "flat bars use the full height")
		assert.Equal(t, 20.0, op.H)
	}
}

func TestBars_StaleIsAmberWithoutPartialFill(t *testing.T) {
	d := newList(t, 60, 50)
	s := newStrategy(t, ShapeConfig{Shape: ShapeStepped, BucketCount: 5, Width: 60, Height: 50}, d)
	s.Draw(0.5, false)
	s.Draw(0, true)

	ops := drawnOps(t, d)
	assert.Equal(t, []string{amber, amber, amber, amber, amber}, colours(ops))
	assert.True(t, s.State().Stale)
}

func TestStrategies_StopDrawsIdleFrameAndResets(t *testing.T) {
	for _, shape := range []Shape{ShapeStepped, ShapeFlat, ShapeCircle} {
		t.Run(string(shape), func(t *testing.T) {
			d := newList(t, 60, 50)
			s := newStrategy(t, ShapeConfig{Shape: shape, BucketCount: 5, Width: 60, Height: 50}, d)
			s.Draw(1, false)
			s.Draw(0, true)
			before := d.Version()

			s.Stop()

			assert.Equal(t, before+1, d.Version(), "stop draws exactly one frame")
			assert.Equal(t, State{}, s.State())
			for _, op := range drawnOps(t, d) {
				assert.NotEqual(t, red, op.Color)
				assert.NotEqual(t, amber, op.Color)
				assert.NotEqual(t, green, op.Color)
			}
		})
	}
}

func TestLevel_DecayProperty(t *testing.T) {
	d := newList(t, 60, 50)
	s := newStrategy(t, ShapeConfig{Shape: ShapeFlat, BucketCount: 5, Width: 60, Height: 50}, d)

	s.Draw(1, false)
	for k := 1; k <= 10; k++ {
		s.Draw(0, false)
		assert.InDelta(t, math.Pow(0.9, float64(k)), s.State().PreviousVolume, 1e-12)
	}

	// A louder sample wins over the decayed value.
	s.Draw(0.7, false)
	assert.Equal(t, 0.7, s.State().PreviousVolume)

	s.Start()
	assert.Equal(t, State{}, s.State())
}

func TestLevel_ClampsOutOfRange(t *testing.T) {
	l := level{decay: 0.9}
	assert.Equal(t, 1.0, l.next(3, false))
	l.reset()
	assert.Equal(t, 0.0, l.next(-2, false))
	assert.Equal(t, 0.0, l.next(math.NaN(), false))
}

func TestCircle_Painting(t *testing.T) {
	d := newList(t, 60, 50)
	s := newStrategy(t, ShapeConfig{Shape: ShapeCircle, BucketCount: 1, Width: 60, Height: 50}, d)
	c := s.(*Circle)
	assert.Equal(t, 15.0, c.BaseRadius())

	s.Draw(0.5, false)
	ops := drawnOps(t, d)
	require.Len(t, ops, 2)
	assert.Equal(t, canvas.OpCircle, ops[0].Kind)
	assert.Equal(t, green, ops[0].Color)
	assert.InDelta(t, 7.5, ops[0].R, 1e-9)
	assert.Equal(t, canvas.OpRing, ops[1].Kind)
	assert.Equal(t, 15.0, ops[1].R)
	assert.Equal(t, 30.0, ops[1].X)
	assert.Equal(t, 25.0, ops[1].Y)

	s.Draw(0.8, false)
	assert.Equal(t, red, drawnOps(t, d)[0].Color, "circle turns red at the threshold")

	s.Draw(0, true)
	ops = drawnOps(t, d)
	assert.Equal(t, amber, ops[0].Color)
	assert.Equal(t, 15.0, ops[0].R)

	s.Stop()
	ops = drawnOps(t, d)
	require.Len(t, ops, 1, "idle circle is just the outline")
	assert.Equal(t, canvas.OpRing, ops[0].Kind)
}

func TestCircle_MinimumRadius(t *testing.T) {
	d := newList(t, 8, 8)
	s := newStrategy(t, ShapeConfig{Shape: ShapeCircle, BucketCount: 1, Width: 8, Height: 8}, d)
	assert.Equal(t, 1.0, s.(*Circle).BaseRadius())
}
