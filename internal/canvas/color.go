package canvas

import (
	"fmt"
	"image/color"
	"strings"
)

// ParseHex parses a #RRGGBB colour into an opaque RGBA value.
func ParseHex(hex string) (color.RGBA, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color length: %s", hex)
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color: %s", hex)
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Hex formats c as #RRGGBB, ignoring alpha.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
