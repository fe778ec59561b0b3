package vad

import (
	"fmt"
	"math"
)

// rmsDecimals is the rounding precision of every RMS value
const rmsDecimals = 1e6

// ComputeRMS returns sqrt(mean(signal^2)) rounded half-to-even to 6 decimal places.
// The signal must not be empty.
func ComputeRMS(signal []float64) (float64, error) {
	if len(signal) == 0 {
		return 0, fmt.Errorf("%w: cannot compute RMS of a zero-length signal", ErrEmptyInput)
	}

	var energy float64
	for _, sample := range signal {
		energy += sample * sample
	}

	rms := math.Sqrt(energy / float64(len(signal)))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return 0, fmt.Errorf("%w: rms=%v over %d samples", ErrNonFinite, rms, len(signal))
	}

	return math.RoundToEven(rms*rmsDecimals) / rmsDecimals, nil
}

// Range is an open interval of RMS values considered voice
type Range struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Validate checks that the range is non-empty
func (r Range) Validate() error {
	if math.IsNaN(r.Low) || math.IsNaN(r.High) {
		return fmt.Errorf("%w: threshold range bounds must be numbers, got (%v, %v)", ErrConfiguration, r.Low, r.High)
	}
	if r.Low >= r.High {
		return fmt.Errorf("%w: threshold range low (%v) must be less than high (%v)", ErrConfiguration, r.Low, r.High)
	}
	return nil
}

// Contains reports whether low < rms < high. Both bounds are exclusive.
func (r Range) Contains(rms float64) bool {
	return r.Low < rms && rms < r.High
}

func (r Range) String() string {
	return fmt.Sprintf("(%g, %g)", r.Low, r.High)
}
