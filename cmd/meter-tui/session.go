package main

import (
	"errors"
	"log/slog"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/render"
	"github.com/oszuidwest/zwfm-meter/internal/source"
	"github.com/oszuidwest/zwfm-meter/internal/widget"
)

// shapes is the order the s key cycles through.
var shapes = []render.Shape{render.ShapeStepped, render.ShapeFlat, render.ShapeCircle}

// frame is what the model shows for one tick.
type frame struct {
	Meter   string
	Alert   media.Alert
	Shape   render.Shape
	Enabled bool
	Muted   bool
	Track   bool // track enabled
	Ended   bool
	Peak    float64
}

// controller is the meter the model drives.
type controller interface {
	Frame() frame
	ToggleMuted()
	ToggleTrackEnabled()
	ToggleMeter() error
	CycleShape() error
	StopTrack() error
}

// session hosts a widget on a terminal surface, fed by a source runner.
// Widget and terminal are only touched on the loop.
type session struct {
	loop   *clock.Loop
	term   *canvas.Terminal
	ctx    *audio.PCMContext
	track  *media.LocalTrack
	runner *source.Runner
	widget *widget.Widget
}

func newSession(loop *clock.Loop, term *canvas.Terminal, p source.Producer, props widget.Props) (*session, error) {
	track := media.NewLocalTrack(p.Name(), p.Format())
	s := &session{
		loop:   loop,
		term:   term,
		ctx:    audio.NewPCMContext(audio.AnalyserOptions{}),
		track:  track,
		runner: source.NewRunner(p, track, source.RunnerOptions{}),
	}
	props.Context = s.ctx
	props.Stream = media.NewStream(track)

	var werr error
	if err := loop.Call(func() { s.widget, werr = widget.New(loop, term, props) }); err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}
	if err := s.runner.Start(); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Frame renders the terminal surface on the loop.
func (s *session) Frame() frame {
	var f frame
	err := s.loop.Call(func() {
		p := s.widget.Props()
		f = frame{
			Meter:   s.term.String(),
			Alert:   s.widget.Alert(),
			Shape:   p.Shape.Shape,
			Enabled: p.Enabled,
		}
		if a, ok := s.widget.Node().(*audio.PCMAnalyser); ok {
			f.Peak = a.Levels().Peak
		} else {
			f.Peak = audio.MinDB
		}
	})
	if err != nil {
		slog.Debug("frame unavailable", "error", err)
	}
	f.Muted = s.track.Muted()
	f.Track = s.track.Enabled()
	f.Ended = s.track.ReadyState() == media.StateEnded
	return f
}

func (s *session) ToggleMuted() {
	s.track.SetMuted(!s.track.Muted())
}

func (s *session) ToggleTrackEnabled() {
	s.track.SetEnabled(!s.track.Enabled())
}

func (s *session) ToggleMeter() error {
	return s.update(func(p *widget.Props) { p.Enabled = !p.Enabled })
}

func (s *session) CycleShape() error {
	return s.update(func(p *widget.Props) { p.Shape.Shape = nextShape(p.Shape.Shape) })
}

// StopTrack ends the track for good; the meter then shows the ended alert.
func (s *session) StopTrack() error {
	s.track.Stop()
	return s.runner.Stop()
}

func (s *session) update(change func(*widget.Props)) error {
	var uerr error
	if err := s.loop.Call(func() {
		p := s.widget.Props()
		change(&p)
		uerr = s.widget.Update(p)
	}); err != nil {
		return err
	}
	return uerr
}

// Close stops the source and releases the widget.
func (s *session) Close() error {
	err := s.runner.Stop()
	s.track.Stop()
	if cerr := s.loop.Call(func() {
		if s.widget != nil {
			s.widget.Close()
		}
	}); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func nextShape(cur render.Shape) render.Shape {
	for i, sh := range shapes {
		if sh == cur {
			return shapes[(i+1)%len(shapes)]
		}
	}
	return shapes[0]
}
