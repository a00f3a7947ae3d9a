package interpolation

import (
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// InterpResult is the output of Interpolate and Resample
type InterpResult struct {
	types.DerivedResult

	// Timestamps of Values; the input timestamps for gap filling
	Timestamps []float64                    `json:"timestamps"`
	Info       provenance.InterpolationInfo `json:"info"`

	// SourceIndex maps each output point to the input sample it reproduces,
	// or -1 when the value was estimated or left missing.
	SourceIndex []int `json:"source_index"`

	// Uncertainty is the posterior standard deviation (gpr only): 0 at
	// original points, NaN where the process produced no estimate.
	Uncertainty []float64 `json:"uncertainty,omitempty"`

	// DominantFrequencies in Hz with normalized periodogram powers (lomb_scargle_spectral only)
	DominantFrequencies []float64 `json:"dominant_frequencies,omitempty"`
	FrequencyPowers     []float64 `json:"frequency_powers,omitempty"`
}

// SizeBytes estimates the in-memory footprint
func (r *InterpResult) SizeBytes() int64 {
	n := int64(len(r.Values))
	return 256 + n*8 +
		int64(len(r.Timestamps))*8 +
		int64(len(r.Info.Interpolated))*(1+16) +
		int64(len(r.SourceIndex))*8 +
		int64(len(r.Uncertainty))*8 +
		int64(len(r.DominantFrequencies)+len(r.FrequencyPowers))*8
}
