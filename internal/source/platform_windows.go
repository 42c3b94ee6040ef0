//go:build windows

package source

import (
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

func platformConfig() CaptureConfig {
	return CaptureConfig{
		Command:    "ffmpeg",
		UsesFFmpeg: true,
		// stdin stays open so FFmpeg can be stopped with 'q'.
		BuildArgs: func(device string) []string {
			return ffmpegCaptureArgs("dshow", device, false)
		},
		DeviceList: DeviceListConfig{
			Command: []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
			// FFmpeg versions disagree on section headers, so match "(audio)" lines instead.
			DevicePattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
			ParseDevice: func(matches []string) *types.AudioDevice {
				if len(matches) < 2 {
					return nil
				}
				name := strings.TrimSpace(matches[1])
				return &types.AudioDevice{ID: "audio=" + name, Name: name}
			},
		},
	}
}
