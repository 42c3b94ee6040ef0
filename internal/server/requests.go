package server

// Request types for WebSocket commands with validation tags.
// Pointer fields are optional; nil leaves the current value unchanged.

// MeterUpdateRequest is the request body for meter/update.
type MeterUpdateRequest struct {
	Shape            *string  `json:"shape" validate:"omitempty,oneof=circle stepped flat"`
	BucketCount      *int     `json:"bucket_count" validate:"omitempty,gte=1,lte=256"`
	Width            *int     `json:"width" validate:"omitempty,gte=1,lte=8192"`
	Height           *int     `json:"height" validate:"omitempty,gte=1,lte=8192"`
	DecayFactor      *float64 `json:"decay_factor" validate:"omitempty,gte=0.9,lte=0.95"`
	TooLoud          *float64 `json:"too_loud_threshold" validate:"omitempty,gt=0,lte=1"`
	WatchdogPeriodMs *int64   `json:"watchdog_period_ms" validate:"omitempty,gte=100,lte=60000"`
	Reduction        *string  `json:"reduction" validate:"omitempty,oneof=mean-frequency peak-time-domain"`
}

// EnableRequest is the request body for meter/enable and track/enable.
type EnableRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// TrackMuteRequest is the request body for track/mute.
type TrackMuteRequest struct {
	Muted *bool `json:"muted" validate:"required"`
}

// AudioUpdateRequest is the request body for audio/update.
type AudioUpdateRequest struct {
	Input string `json:"input" validate:"required,max=256"`
}

// HelloRequest is the request body for hello.
type HelloRequest struct {
	Protocol string `json:"protocol" validate:"required,semver"`
}
