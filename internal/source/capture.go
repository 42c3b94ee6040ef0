package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/oszuidwest/zwfm-meter/internal/media"
	"github.com/oszuidwest/zwfm-meter/internal/types"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// maxStderrLine caps the stderr line carried in capture errors.
const maxStderrLine = 200

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for capturing device
	// as interleaved S16LE at types.SampleRate and types.Channels.
	BuildArgs func(device string) []string

	// DeviceList describes how to enumerate input devices.
	DeviceList DeviceListConfig
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// An empty device selects the platform default or the first detected device.
func BuildCaptureCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	return buildCaptureCommand(platformConfig(), device, ffmpegPath, Devices)
}

func buildCaptureCommand(cfg CaptureConfig, device, ffmpegPath string, list func() []types.AudioDevice) (string, []string, error) {
	if device == "" {
		device = cfg.DefaultDevice
	}

	// Windows has no safe default.
	if device == "" {
		devices := list()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}
	return command, cfg.BuildArgs(device), nil
}

// Capture records PCM from an audio input device through an external command.
type Capture struct {
	device     string
	ffmpegPath string
}

// NewCapture returns a producer for device. An empty device is auto-detected at start.
func NewCapture(device, ffmpegPath string) *Capture {
	return &Capture{device: device, ffmpegPath: ffmpegPath}
}

// Name returns the configured device, or "default".
func (c *Capture) Name() string {
	if c.device == "" {
		return "default"
	}
	return c.device
}

// Format returns the fixed capture format.
func (c *Capture) Format() media.Format {
	return media.Format{SampleRate: types.SampleRate, Channels: types.Channels}
}

// Produce runs the capture command and copies its stdout to w until the
// command exits or ctx is cancelled. The error carries the last stderr line.
func (c *Capture) Produce(ctx context.Context, w io.Writer) error {
	name, args, err := BuildCaptureCommand(c.device, c.ffmpegPath)
	if err != nil {
		return err
	}
	return runCommand(ctx, w, name, args...)
}

func runCommand(ctx context.Context, w io.Writer, name string, args ...string) error {
	slog.Info("starting audio capture", "command", name)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return interrupt(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return util.WrapError("create stdout pipe", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return util.WrapError("start capture", err)
	}

	_, copyErr := io.Copy(w, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if msg := stderrTail(stderr.String()); msg != "" && waitErr != nil {
		return fmt.Errorf("%w: %s", waitErr, msg)
	}
	return errors.Join(waitErr, copyErr)
}

// interrupt asks the capture command to exit. Windows cannot deliver SIGINT
// to a child process, so there the command is killed once WaitDelay expires.
func interrupt(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return p.Signal(os.Interrupt)
}

// stderrTail returns the last non-blank stderr line, cut to maxStderrLine.
func stderrTail(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > maxStderrLine {
			line = line[:maxStderrLine] + "..."
		}
		return line
	}
	return ""
}
