//go:build darwin

package source

import (
	"regexp"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

func platformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: ":0",
		UsesFFmpeg:    true,
		BuildArgs: func(device string) []string {
			return ffmpegCaptureArgs("avfoundation", device, true)
		},
		DeviceList: DeviceListConfig{
			Command:          []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
			AudioStartMarker: "AVFoundation audio devices:",
			AudioStopMarker:  "AVFoundation video devices:",
			DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
			ParseDevice: func(matches []string) *types.AudioDevice {
				if len(matches) < 3 {
					return nil
				}
				return &types.AudioDevice{ID: ":" + matches[1], Name: matches[2]}
			},
		},
	}
}
