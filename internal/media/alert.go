package media

import "fmt"

// AlertKind identifies why the meter cannot show live audio.
type AlertKind string

// Alert kinds in precedence order.
const (
	AlertNone          AlertKind = ""
	AlertDisabled      AlertKind = "disabled"
	AlertNoTrack       AlertKind = "no-track"
	AlertTrackCount    AlertKind = "track-count"
	AlertMuted         AlertKind = "muted"
	AlertTrackDisabled AlertKind = "track-disabled"
	AlertEnded         AlertKind = "ended"
)

// Alert is the status message shown in place of, or next to, the meter.
type Alert struct {
	Kind    AlertKind `json:"kind,omitzero"`
	Message string    `json:"message,omitzero"`
	// Unmute is set when the user can re-enable the track themselves.
	Unmute bool `json:"unmute,omitzero"`
}

// Active reports whether the alert should be displayed.
func (a Alert) Active() bool {
	return a.Kind != AlertNone
}

// ChooseAlert picks the alert for the given state. The first match wins.
func ChooseAlert(disabled bool, h Health) Alert {
	switch {
	case disabled:
		return Alert{Kind: AlertDisabled, Message: "Meter disabled"}
	case !h.TrackPresent:
		return Alert{Kind: AlertNoTrack, Message: "No audio track"}
	case h.TrackCount != 1:
		return Alert{Kind: AlertTrackCount, Message: fmt.Sprintf("Expected 1 audio track, found %d", h.TrackCount)}
	case h.Muted:
		return Alert{Kind: AlertMuted, Message: "Audio input halted"}
	case !h.Enabled:
		return Alert{Kind: AlertTrackDisabled, Message: "Audio track muted", Unmute: true}
	case h.Ended:
		return Alert{Kind: AlertEnded, Message: "Audio track ended"}
	default:
		return Alert{}
	}
}
