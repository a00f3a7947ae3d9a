package interpolation

import (
	"math"

	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// Extrapolation controls leading and trailing gaps, which have a valid
// neighbour on one side only.
type Extrapolation string

const (
	// ExtrapolateNone leaves edge gaps as NaN
	ExtrapolateNone Extrapolation = "none"
	// ExtrapolateNearest copies the nearest valid value
	ExtrapolateNearest Extrapolation = "nearest"
	// ExtrapolateLinear continues the line through the two outermost valid points
	ExtrapolateLinear Extrapolation = "linear"
)

// SplineParams configure smoothing_spline
type SplineParams struct {
	// Smoothing in [0, 1]: 0 interpolates, 1 is the least-squares line
	Smoothing float64 `json:"smoothing"`
}

// LocalConstant requests a degree-zero moving least squares fit, a
// tricube-weighted local mean. A zero Degree selects the quadratic default.
const LocalConstant = -1

// MLSParams configure moving least squares
type MLSParams struct {
	// Window in samples; zero selects 7
	Window int `json:"window"`
	// Degree of the local polynomial; zero selects 2, LocalConstant 0
	Degree int `json:"degree"`
}

// degree resolves the LocalConstant sentinel
func (m MLSParams) degree() int {
	if m.Degree == LocalConstant {
		return 0
	}
	return m.Degree
}

// GPRParams configure the RBF-kernel Gaussian process. Zero values are
// derived from the data.
type GPRParams struct {
	LengthScale    float64 `json:"length_scale"`
	SignalVariance float64 `json:"signal_variance"`
	NoiseVariance  float64 `json:"noise_variance"`
}

// SpectralParams configure the Lomb-Scargle reconstruction
type SpectralParams struct {
	// Frequencies is the number of dominant frequencies kept
	Frequencies  int     `json:"frequencies"`
	Oversampling float64 `json:"oversampling"`
}

// GridParams configure resample_grid. Timestamps wins over Step.
type GridParams struct {
	Timestamps []float64         `json:"-"`
	Step       float64           `json:"step"`
	Window     *types.TimeWindow `json:"window,omitempty"`
	Method     provenance.Method `json:"method"`
}

// Params select a method and its configuration
type Params struct {
	Method        provenance.Method `json:"method"`
	Extrapolation Extrapolation     `json:"extrapolation"`
	Spline        SplineParams      `json:"spline"`
	MLS           MLSParams         `json:"mls"`
	GPR           GPRParams         `json:"gpr"`
	Spectral      SpectralParams    `json:"spectral"`
	Grid          GridParams        `json:"grid"`
}

// DefaultParams returns conservative defaults for method
func DefaultParams(method provenance.Method) Params {
	return Params{
		Method:        method,
		Extrapolation: ExtrapolateNone,
		Spline:        SplineParams{Smoothing: 0.5},
		MLS:           MLSParams{Window: 7, Degree: 2},
		Spectral:      SpectralParams{Frequencies: 3, Oversampling: 4},
		Grid:          GridParams{Method: provenance.MethodLinear},
	}
}

func (p Params) withDefaults(fallback provenance.Method) Params {
	if p.Method == "" {
		p.Method = fallback
	}
	if p.Extrapolation == "" {
		p.Extrapolation = ExtrapolateNone
	}
	if p.MLS.Window == 0 {
		p.MLS.Window = 7
	}
	if p.MLS.Degree == 0 {
		p.MLS.Degree = 2
	}
	if p.Spectral.Frequencies == 0 {
		p.Spectral.Frequencies = 3
	}
	if p.Spectral.Oversampling == 0 {
		p.Spectral.Oversampling = 4
	}
	if p.Grid.Method == "" {
		p.Grid.Method = provenance.MethodLinear
	}
	return p
}

func (p Params) validate(op string) error {
	switch p.Extrapolation {
	case ExtrapolateNone, ExtrapolateNearest, ExtrapolateLinear:
	default:
		return types.Precondition(op, "unknown extrapolation policy %q", p.Extrapolation)
	}

	switch p.Method {
	case provenance.MethodSmoothingSpline:
		s := p.Spline.Smoothing
		if math.IsNaN(s) || s < 0 || s > 1 {
			return types.Precondition(op, "smoothing factor %v outside [0, 1]", s)
		}
	case provenance.MethodMLS:
		if p.MLS.degree() < 0 {
			return types.Precondition(op, "mls degree %d is negative", p.MLS.Degree)
		}
		if p.MLS.Window < p.MLS.degree()+1 {
			return types.Precondition(op, "mls window %d too small for degree %d", p.MLS.Window, p.MLS.degree())
		}
	case provenance.MethodGPR:
		if p.GPR.LengthScale < 0 || p.GPR.SignalVariance < 0 || p.GPR.NoiseVariance < 0 {
			return types.Precondition(op, "gpr hyperparameters must be non-negative")
		}
	case provenance.MethodLombScargle:
		if p.Spectral.Frequencies < 1 {
			return types.Precondition(op, "spectral frequency count %d must be positive", p.Spectral.Frequencies)
		}
		if p.Spectral.Oversampling < 1 {
			return types.Precondition(op, "spectral oversampling %v must be at least 1", p.Spectral.Oversampling)
		}
	case provenance.MethodResampleGrid:
		if p.Grid.Method == provenance.MethodResampleGrid {
			return types.Precondition(op, "resample_grid cannot use itself as the inner method")
		}
		if len(p.Grid.Timestamps) == 0 && !(p.Grid.Step > 0) {
			return types.Precondition(op, "resample_grid needs grid timestamps or a positive step")
		}
		if p.Grid.Window != nil {
			if err := p.Grid.Window.Validate(op); err != nil {
				return err
			}
		}
		if len(p.Grid.Timestamps) > 0 {
			if err := types.CheckTimestamps(op, p.Grid.Timestamps); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary returns the parameters relevant to the selected method
func (p Params) Summary() map[string]any {
	out := map[string]any{
		"method":        string(p.Method),
		"extrapolation": string(p.Extrapolation),
	}
	switch p.Method {
	case provenance.MethodSmoothingSpline:
		out["smoothing"] = p.Spline.Smoothing
	case provenance.MethodMLS:
		out["window"] = p.MLS.Window
		out["degree"] = p.MLS.degree()
	case provenance.MethodGPR:
		out["length_scale"] = p.GPR.LengthScale
		out["signal_variance"] = p.GPR.SignalVariance
		out["noise_variance"] = p.GPR.NoiseVariance
	case provenance.MethodLombScargle:
		out["frequencies"] = p.Spectral.Frequencies
		out["oversampling"] = p.Spectral.Oversampling
	case provenance.MethodResampleGrid:
		out["grid_method"] = string(p.Grid.Method)
		out["step"] = p.Grid.Step
		out["grid_points"] = len(p.Grid.Timestamps)
		if p.Grid.Window != nil {
			out["window_start"] = p.Grid.Window.Start
			out["window_end"] = p.Grid.Window.End
		}
	}
	return out
}
