package logging

import "math"

// ProgressSampler thins progress updates to one log line per step percent.
// The first update and the final 100% are always logged.
type ProgressSampler struct {
	step float64
	last int
}

// NewProgressSampler returns a sampler with the given step, 5 when step <= 0.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step, last: -1}
}

// ShouldLog reports whether percent entered a step not logged yet. Negative
// and NaN values are never logged. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(percent float64) bool {
	if s == nil {
		return true
	}
	if percent < 0 || math.IsNaN(percent) {
		return false
	}
	bucket := int(math.Min(percent, 100) / s.step)
	if bucket <= s.last {
		return false
	}
	s.last = bucket
	return true
}

// Reset forgets what was logged, for a retried step.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.last = -1
	}
}
