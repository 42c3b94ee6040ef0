package source

import (
	"cmp"
	"os/exec"
)

// FindFFmpeg resolves the FFmpeg binary used for capture and device listing.
// A configured path must resolve on its own; without one, PATH is searched.
// It returns "" when FFmpeg is unavailable.
func FindFFmpeg(configured string) string {
	path, err := exec.LookPath(cmp.Or(configured, "ffmpeg"))
	if err != nil {
		return ""
	}
	return path
}
