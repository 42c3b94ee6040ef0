package audio

// byteCentre is the time-domain value of silence and the frequency scale divisor.
const byteCentre = 128.0

// Sampler reduces an analyser snapshot to a level in [0,1].
// It reuses one scratch buffer and is not safe for concurrent use.
type Sampler struct {
	reduction Reduction
	buf       []byte
}

// NewSampler returns a sampler using r, or MeanFrequency when r is empty.
func NewSampler(r Reduction) *Sampler {
	if r == "" {
		r = MeanFrequency
	}
	return &Sampler{reduction: r}
}

// Reduction returns the configured reduction.
func (s *Sampler) Reduction() Reduction {
	return s.reduction
}

// Sample reads a and returns its level. A nil analyser or empty snapshot yields 0.
func (s *Sampler) Sample(a Analyser) float64 {
	if a == nil {
		return 0
	}
	switch s.reduction {
	case PeakTimeDomain:
		return s.peakTimeDomain(a)
	default:
		return s.meanFrequency(a)
	}
}

func (s *Sampler) meanFrequency(a Analyser) float64 {
	data := s.scratch(a.FrequencyBinCount())
	if len(data) == 0 {
		return 0
	}
	a.ByteFrequencyData(data)

	var sum int
	for _, b := range data {
		sum += int(b)
	}
	return clamp01(float64(sum) / float64(len(data)) / byteCentre)
}

func (s *Sampler) peakTimeDomain(a Analyser) float64 {
	data := s.scratch(a.FFTSize())
	if len(data) == 0 {
		return 0
	}
	a.ByteTimeDomainData(data)

	var peak float64
	for _, b := range data {
		d := float64(b) - byteCentre
		if d < 0 {
			d = -d
		}
		peak = max(peak, d)
	}
	return clamp01(peak / byteCentre)
}

func (s *Sampler) scratch(n int) []byte {
	if n <= 0 {
		return nil
	}
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	return s.buf[:n]
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
