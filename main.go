// Package main provides a live audio level meter for a studio audio input,
// served as a web page that replays the meter's display list on a canvas.
//
// Usage:
//
//	meter [-config path/to/config.json]
//
// If -config is not specified, the meter looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/clock"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/events"
	"github.com/oszuidwest/zwfm-meter/internal/source"
	"github.com/oszuidwest/zwfm-meter/internal/station"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// FFmpeg is only needed for capture on platforms without a native recorder.
	ffmpegPath := source.FindFFmpeg(snap.FFmpegPath)
	ffmpegAvailable := ffmpegPath != ""
	if ffmpegAvailable {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	} else {
		slog.Warn("FFmpeg not found", "configured_path", snap.FFmpegPath)
	}

	var eventLog *events.Logger
	if snap.HasEventLog() {
		var err error
		eventLog, err = events.NewLogger(snap.EventLog)
		if err != nil {
			slog.Error("failed to open event log", "error", err)
			os.Exit(1)
		}
		slog.Info("writing events", "path", eventLog.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := clock.NewLoop(snap.Meter.FPS)
	go loop.Run(ctx)

	st, err := station.New(cfg, ffmpegPath, loop, eventLog, nil)
	if err != nil {
		slog.Error("failed to create meter", "error", err)
		os.Exit(1)
	}
	if err := st.Start(); err != nil {
		slog.Error("failed to start meter", "error", err)
	}

	srv := NewServer(cfg, st, ffmpegAvailable)
	httpServer := srv.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := st.Stop(); err != nil {
		slog.Error("error stopping meter", "error", err)
	}

	cancel()
	<-loop.Done()

	if err := eventLog.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}

	slog.Info("shutdown complete")
}
