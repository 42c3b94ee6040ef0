package audio

import "math"

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
)

// clipLevel is ClipThreshold on the normalised [-1,1] scale.
const clipLevel = float64(ClipThreshold) / MaxSampleValue

// Levels contains RMS and peak levels in dBFS for a block of samples.
type Levels struct {
	RMS   float64 `json:"rms"`
	Peak  float64 `json:"peak"`
	Clips int     `json:"clips,omitzero"`
}

// MeasureLevels computes levels for normalised samples in [-1,1].
func MeasureLevels(samples []float64) Levels {
	if len(samples) == 0 {
		return Levels{RMS: MinDB, Peak: MinDB}
	}

	var sumSquares, peak float64
	var clips int
	for _, s := range samples {
		sumSquares += s * s
		a := math.Abs(s)
		peak = max(peak, a)
		if a >= clipLevel {
			clips++
		}
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	return Levels{
		RMS:   toDB(rms),
		Peak:  toDB(peak),
		Clips: clips,
	}
}

func toDB(v float64) float64 {
	if v <= 0 {
		return MinDB
	}
	return max(20*math.Log10(v), MinDB)
}
