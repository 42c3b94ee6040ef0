// Command meter-tui shows the live audio meter in a terminal.
//
// Usage:
//
//	meter-tui [-file tone.wav | -input hw:0] [-shape stepped]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/render"
	"github.com/oszuidwest/zwfm-meter/internal/source"
	"github.com/oszuidwest/zwfm-meter/internal/util"
	"github.com/oszuidwest/zwfm-meter/internal/widget"
)

func main() {
	file := flag.String("file", "", "Audio file to meter instead of capturing (wav, mp3, ogg, flac)")
	input := flag.String("input", "", "Capture device (default: platform default)")
	shape := flag.String("shape", config.DefaultShape, "Meter shape: stepped, flat or circle")
	cols := flag.Int("cols", 60, "Meter width in terminal cells")
	rows := flag.Int("rows", 6, "Meter height in terminal cells")
	logFile := flag.String("log", "", "Write logs to this file (default: discard)")
	flag.Parse()

	if err := run(*file, *input, *shape, *cols, *rows, *logFile); err != nil {
		fmt.Fprintln(os.Stderr, "meter-tui:", err)
		os.Exit(1)
	}
}

func run(file, input, shape string, cols, rows int, logFile string) error {
	// The alt screen owns stdout, so logs go to a file or nowhere.
	if logFile != "" {
		f, err := tea.LogToFile(logFile, "meter-tui")
		if err != nil {
			return util.WrapError("open log file", err)
		}
		defer f.Close() //nolint:errcheck // Log file close error is not actionable on exit
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	} else {
		slog.SetDefault(slog.New(slog.DiscardHandler))
	}

	producer, title, err := newProducer(file, input)
	if err != nil {
		return err
	}

	// The terminal keeps the web meter's virtual geometry.
	d := config.DefaultMeter()
	term, err := canvas.NewTerminal(d.Width, d.Height, cols, rows)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := clock.NewLoop(d.FPS)
	go loop.Run(ctx)

	reduction, err := audio.ParseReduction(d.Reduction)
	if err != nil {
		return err
	}
	sess, err := newSession(loop, term, producer, widget.Props{
		Shape:          render.ShapeConfig{Shape: render.Shape(shape), BucketCount: d.BucketCount},
		Enabled:        true,
		Options:        render.Options{DecayFactor: d.DecayFactor, TooLoud: d.TooLoud},
		Reduction:      reduction,
		WatchdogPeriod: time.Duration(d.WatchdogPeriodMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	_, runErr := tea.NewProgram(newModel(sess, title), tea.WithAltScreen()).Run()
	if err := sess.Close(); err != nil {
		slog.Warn("failed to stop meter", "error", err)
	}
	return runErr
}

func newProducer(file, input string) (source.Producer, string, error) {
	if file != "" {
		p, err := source.NewFile(file, source.FileOptions{Loop: true})
		if err != nil {
			return nil, "", err
		}
		return p, "Metering " + file, nil
	}
	title := "Metering default input"
	if input != "" {
		title = "Metering " + input
	}
	return source.NewCapture(input, source.FindFFmpeg("")), title, nil
}
