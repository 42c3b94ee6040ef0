//go:build linux

package source

import (
	"regexp"
	"strconv"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

const linuxDefaultDevice = "default:CARD=sndrpihifiberry"

func platformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: linuxDefaultDevice,
		BuildArgs:     arecordArgs,
		DeviceList: DeviceListConfig{
			Command:       []string{"arecord", "-l"},
			DevicePattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
			ParseDevice: func(matches []string) *types.AudioDevice {
				if len(matches) < 4 {
					return nil
				}
				return &types.AudioDevice{ID: "default:CARD=" + matches[2], Name: matches[3]}
			},
			FallbackDevices: []types.AudioDevice{
				{ID: linuxDefaultDevice, Name: "HiFiBerry (default)"},
			},
		},
	}
}

func arecordArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(types.SampleRate),
		"-c", strconv.Itoa(types.Channels),
		"-t", "raw",
		"-q",
		"-",
	}
}
