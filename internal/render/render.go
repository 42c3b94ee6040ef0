// Package render paints meter levels onto a canvas.Surface.
package render

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-meter/internal/canvas"
)

// Shape selects the meter geometry.
type Shape string

// Supported shapes.
const (
	ShapeCircle  Shape = "circle"
	ShapeStepped Shape = "stepped"
	ShapeFlat    Shape = "flat"
)

// Defaults.
const (
	DefaultBucketCount = 5
	DefaultDecayFactor = 0.9
	DefaultTooLoud     = 0.8
)

// Sentinel errors for strategy construction.
var (
	ErrInvalidShape   = errors.New("invalid shape config")
	ErrInvalidOptions = errors.New("invalid render options")
)

// ShapeConfig fixes the geometry of a strategy. It is immutable once a strategy is built.
type ShapeConfig struct {
	Shape       Shape `json:"shape" validate:"required,oneof=circle stepped flat"`
	BucketCount int   `json:"bucket_count" validate:"gte=1,lte=256"`
	Width       int   `json:"width" validate:"gte=1,lte=8192"`
	Height      int   `json:"height" validate:"gte=1,lte=8192"`
}

// Validate checks the config and returns validator errors wrapped in ErrInvalidShape.
func (c ShapeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidShape, err)
	}
	return nil
}

// Options tune the level response shared by all shapes.
type Options struct {
	DecayFactor float64 `json:"decay_factor" validate:"gte=0.9,lte=0.95"`
	TooLoud     float64 `json:"too_loud_threshold" validate:"gt=0,lte=1"`
}

// DefaultOptions returns the standard decay and too-loud threshold.
func DefaultOptions() Options {
	return Options{DecayFactor: DefaultDecayFactor, TooLoud: DefaultTooLoud}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	if o.DecayFactor == 0 {
		o.DecayFactor = DefaultDecayFactor
	}
	if o.TooLoud == 0 {
		o.TooLoud = DefaultTooLoud
	}
	return o
}

// Validate checks the options and returns validator errors wrapped in ErrInvalidOptions.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

// State is the per-strategy render state.
type State struct {
	PreviousVolume float64 `json:"previous_volume"`
	Stale          bool    `json:"stale"`
}

// Strategy paints one frame per Draw call.
type Strategy interface {
	// Start resets the render state.
	Start()
	// Stop resets the render state and paints one idle frame.
	Stop()
	// Draw paints volume, or the stale visual when stale is set.
	Draw(volume float64, stale bool)
	State() State
	Config() ShapeConfig
}

// New builds the strategy for cfg on s.
func New(cfg ShapeConfig, opts Options, s canvas.Surface) (Strategy, error) {
	if s == nil {
		return nil, canvas.ErrNoSurface
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Shape {
	case ShapeCircle:
		return newCircle(cfg, opts, s), nil
	default:
		return newBars(cfg, opts, s), nil
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// level applies fast attack and slow release to incoming volumes.
type level struct {
	decay float64
	state State
}

func (l *level) reset() {
	l.state = State{}
}

// next returns max(clamped volume, previous*decay) and records it.
func (l *level) next(volume float64, stale bool) float64 {
	eff := max(clamp01(volume), l.state.PreviousVolume*l.decay)
	l.state = State{PreviousVolume: eff, Stale: stale}
	return eff
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
