//go:build !linux

package source

import (
	"strconv"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// ffmpegCaptureArgs builds FFmpeg arguments that capture device through
// inputFormat and write raw PCM to stdout.
func ffmpegCaptureArgs(inputFormat, device string, nostdin bool) []string {
	args := []string{"-f", inputFormat, "-i", device}
	if nostdin {
		args = append(args, "-nostdin")
	}
	return append(args,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(types.Channels),
		"-ar", strconv.Itoa(types.SampleRate),
		"pipe:1",
	)
}
