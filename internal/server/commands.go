package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-meter/internal/canvas"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// ErrUnknownCommand is returned for commands outside the known namespaces.
var ErrUnknownCommand = errors.New("unknown command")

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Station is the running meter the commands act on.
type Station interface {
	Status() types.WSStatusResponse
	Frame() canvas.Frame
	Subscribe() (<-chan types.WSEventResponse, func())
	UpdateMeter(m config.MeterConfig) error
	SetMeterEnabled(enabled bool) error
	SetTrackMuted(muted bool) error
	SetTrackEnabled(enabled bool) error
	StopTrack() error
	RestartTrack() error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg     *config.Config
	station Station
	version func() types.VersionInfo
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, station Station, version func() types.VersionInfo) *CommandHandler {
	return &CommandHandler{
		cfg:     cfg,
		station: station,
		version: version,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "meter/update", "track/mute").
// triggerStatusUpdate is called once the command's effect is visible.
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "hello":
		h.handleHello(cmd, send)
		return
	case "meter":
		h.handleMeter(action, cmd, send)
	case "track":
		if h.handleTrack(action, cmd, send, triggerStatusUpdate) {
			return
		}
	case "audio":
		h.handleAudio(action, cmd, send, triggerStatusUpdate)
		return
	case "config":
		h.handleConfig(action, cmd, send)
		return
	case "status":
		h.handleStatus(action, cmd, send)
	default:
		h.unknown(cmd, send)
		return
	}

	triggerStatusUpdate()
}

func (h *CommandHandler) unknown(cmd WSCommand, send chan<- any) {
	slog.Warn("unknown WebSocket command", "type", cmd.Type)
	SendError(send, cmd.Type, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type))
}

// --- Namespace handlers ---

// handleHello answers the client's protocol version with compatibility info.
func (h *CommandHandler) handleHello(cmd WSCommand, send chan<- any) {
	var req HelloRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	compatible := Compatible(req.Protocol, Protocol)
	if !compatible {
		slog.Warn("incompatible client protocol", "client", req.Protocol, "server", Protocol)
	}
	trySend(send, cmd.Type, types.WSHelloResponse{
		Type:       "hello",
		Compatible: compatible,
		Version:    h.version(),
	})
}

// handleMeter routes meter/* commands.
func (h *CommandHandler) handleMeter(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		HandleCommand(cmd, send, func(req *MeterUpdateRequest) (any, error) {
			m := req.Apply(h.cfg.Snapshot().Meter)
			slog.Info("meter/update: applying meter settings", "shape", m.Shape, "buckets", m.BucketCount)
			if err := h.station.UpdateMeter(m); err != nil {
				return nil, err
			}
			return h.cfg.Snapshot().Meter, nil
		})
	case "enable":
		HandleCommand(cmd, send, func(req *EnableRequest) (any, error) {
			return nil, h.station.SetMeterEnabled(*req.Enabled)
		})
	default:
		h.unknown(cmd, send)
	}
}

// handleTrack routes track/* commands. It reports whether the command
// completes asynchronously and triggers the status update itself.
func (h *CommandHandler) handleTrack(action string, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) bool {
	switch action {
	case "mute":
		HandleCommand(cmd, send, func(req *TrackMuteRequest) (any, error) {
			return nil, h.station.SetTrackMuted(*req.Muted)
		})
	case "enable":
		HandleCommand(cmd, send, func(req *EnableRequest) (any, error) {
			return nil, h.station.SetTrackEnabled(*req.Enabled)
		})
	case "stop":
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.station.StopTrack()
		}, triggerStatusUpdate)
		return true
	case "restart":
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.station.RestartTrack()
		}, triggerStatusUpdate)
		return true
	default:
		h.unknown(cmd, send)
	}
	return false
}

// handleAudio routes audio/* commands.
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	if action != "update" {
		h.unknown(cmd, send)
		return
	}

	var req AudioUpdateRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	slog.Info("audio/update: changing audio input", "input", req.Input)
	if err := h.cfg.SetAudioInput(req.Input); err != nil {
		SendError(send, cmd.Type, err)
		return
	}

	// A new input only takes effect on a fresh track.
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.station.RestartTrack()
	}, triggerStatusUpdate)
}

// handleConfig routes config/* commands.
func (h *CommandHandler) handleConfig(action string, cmd WSCommand, send chan<- any) {
	if action != "get" {
		h.unknown(cmd, send)
		return
	}

	snap := h.cfg.Snapshot()
	trySend(send, cmd.Type, types.WSConfigResponse{
		Type: "config",
		Config: configView{
			Meter:             snap.Meter,
			AudioInput:        snap.AudioInput,
			AudioFile:         snap.AudioFile,
			SilenceThreshold:  snap.SilenceThreshold,
			SilenceDurationMs: snap.SilenceDurationMs,
			SilenceRecoveryMs: snap.SilenceRecoveryMs,
		},
	})
}

// handleStatus routes status/* commands.
func (h *CommandHandler) handleStatus(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		h.unknown(cmd, send)
	}
}

// configView is the runtime-changeable part of the configuration sent to clients.
type configView struct {
	Meter             config.MeterConfig `json:"meter"`
	AudioInput        string             `json:"audio_input"`
	AudioFile         string             `json:"audio_file,omitzero"`
	SilenceThreshold  float64            `json:"silence_threshold"`
	SilenceDurationMs int64              `json:"silence_duration_ms"`
	SilenceRecoveryMs int64              `json:"silence_recovery_ms"`
}

// Apply returns m with the request's fields set.
func (r *MeterUpdateRequest) Apply(m config.MeterConfig) config.MeterConfig {
	if r.Shape != nil {
		m.Shape = *r.Shape
	}
	if r.BucketCount != nil {
		m.BucketCount = *r.BucketCount
	}
	if r.Width != nil {
		m.Width = *r.Width
	}
	if r.Height != nil {
		m.Height = *r.Height
	}
	if r.DecayFactor != nil {
		m.DecayFactor = *r.DecayFactor
	}
	if r.TooLoud != nil {
		m.TooLoud = *r.TooLoud
	}
	if r.WatchdogPeriodMs != nil {
		m.WatchdogPeriodMs = *r.WatchdogPeriodMs
	}
	if r.Reduction != nil {
		m.Reduction = *r.Reduction
	}
	return m
}
