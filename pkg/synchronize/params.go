package synchronize

import (
	"math"

	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// Method names an alignment strategy
type Method string

const (
	CommonGrid  Method = "common_grid_interpolate"
	KalmanAlign Method = "kalman_align"
)

// KalmanParams tune the constant-velocity filter. Zero values are
// estimated from each series.
type KalmanParams struct {
	// ProcessNoise is the white-acceleration spectral density q
	ProcessNoise float64 `json:"process_noise"`
	// MeasurementNoise is the observation variance R
	MeasurementNoise float64 `json:"measurement_noise"`
}

// Params configure Synchronize
type Params struct {
	Method Method `json:"method"`
	// Frequency of the common grid in Hz. Zero lets the strategy choose:
	// the sparsest input density for the common grid, the merged event
	// timeline for kalman_align.
	Frequency float64 `json:"frequency,omitempty"`
	// Window clips the common time base
	Window *types.TimeWindow `json:"window,omitempty"`
	// Interpolation is the per-series method of common_grid_interpolate
	Interpolation provenance.Method `json:"interpolation,omitempty"`
	Kalman        KalmanParams      `json:"kalman"`
}

// DefaultParams returns linear common-grid alignment
func DefaultParams() Params {
	return Params{
		Method:        CommonGrid,
		Interpolation: provenance.MethodLinear,
	}
}

func (p Params) validate(op string) error {
	if p.Frequency < 0 || math.IsNaN(p.Frequency) || math.IsInf(p.Frequency, 0) {
		return types.Precondition(op, "frequency %v must be positive", p.Frequency)
	}
	if p.Window != nil {
		if err := p.Window.Validate(op); err != nil {
			return err
		}
	}
	if p.Kalman.ProcessNoise < 0 || p.Kalman.MeasurementNoise < 0 {
		return types.Precondition(op, "kalman noise parameters must not be negative")
	}
	return nil
}

// step returns the caller's grid spacing, or 0 when none was requested
func (p Params) step() float64 {
	if p.Frequency > 0 {
		return 1 / p.Frequency
	}
	return 0
}
