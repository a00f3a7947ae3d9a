package calculus

import (
	"math"

	"github.com/vjranagit/tscore/pkg/types"
)

// DerivativeMethod selects the differentiation scheme
type DerivativeMethod string

const (
	FiniteDiff       DerivativeMethod = "finite_diff"
	SavitzkyGolay    DerivativeMethod = "savitzky_golay"
	SplineDerivative DerivativeMethod = "spline_derivative"
)

// IntegralMethod selects the quadrature
type IntegralMethod string

const (
	Trapezoid  IntegralMethod = "trapezoid"
	Simpson    IntegralMethod = "simpson"
	Cumulative IntegralMethod = "cumulative"
)

// SmoothingMethod selects a pre-smoothing filter
type SmoothingMethod string

const (
	SmoothSavitzkyGolay SmoothingMethod = "savitzky_golay"
	SmoothGaussian      SmoothingMethod = "gaussian"
	SmoothMedian        SmoothingMethod = "median"
	SmoothLowpass       SmoothingMethod = "lowpass"
)

// ConstantFit requests a degree-zero Savitzky-Golay smoother, a plain
// moving average. A zero PolyOrder selects the cubic default instead.
const ConstantFit = -1

// Smoothing configures an optional filter applied before differentiation
type Smoothing struct {
	Method SmoothingMethod `json:"method"`
	// Window in samples, odd (savitzky_golay, median)
	Window int `json:"window,omitempty"`
	// PolyOrder of the savitzky_golay smoother; zero selects 3, ConstantFit 0
	PolyOrder int `json:"polyorder,omitempty"`
	// Sigma in multiples of the median sample spacing (gaussian)
	Sigma float64 `json:"sigma,omitempty"`
	// CutoffHz of the zero-phase lowpass; zero means a tenth of the sample rate
	CutoffHz float64 `json:"cutoff_hz,omitempty"`
}

// DerivativeParams configure Derivative. Order, Smoothing and PreSmooth are
// always taken as given; a zero Method, Window or PolyOrder falls back to
// the engine defaults.
type DerivativeParams struct {
	// Order in {1, 2, 3}; zero is refused
	Order  int              `json:"order"`
	Method DerivativeMethod `json:"method"`
	// Window and PolyOrder of the savitzky_golay fit. PolyOrder must reach
	// Order, so zero is free to mean the default.
	Window    int `json:"window,omitempty"`
	PolyOrder int `json:"polyorder,omitempty"`
	// Smoothing factor of the spline_derivative fit, in [0, 1]
	Smoothing float64 `json:"smoothing,omitempty"`
	// PreSmooth is applied first when set
	PreSmooth *Smoothing `json:"presmooth,omitempty"`
}

// DefaultDerivativeParams returns first-order finite differences with
// conservative fit settings for the other methods.
func DefaultDerivativeParams() DerivativeParams {
	return DerivativeParams{
		Order:     1,
		Method:    FiniteDiff,
		Window:    7,
		PolyOrder: 3,
		Smoothing: 0.1,
	}
}

func (p DerivativeParams) withDefaults(def DerivativeParams) DerivativeParams {
	if p.Method == "" {
		p.Method = def.Method
	}
	if p.Window == 0 {
		p.Window = def.Window
	}
	if p.PolyOrder == 0 {
		p.PolyOrder = def.PolyOrder
	}
	if p.PreSmooth != nil {
		s := p.PreSmooth.withDefaults()
		p.PreSmooth = &s
	}
	return p
}

func (p DerivativeParams) validate(op string) error {
	if p.Order < 1 || p.Order > 3 {
		return types.Precondition(op, "derivative order %d outside {1, 2, 3}", p.Order)
	}
	switch p.Method {
	case SavitzkyGolay:
		if err := checkSGWindow(op, p.Window, p.PolyOrder); err != nil {
			return err
		}
		if p.PolyOrder < p.Order {
			return types.Precondition(op, "polyorder %d cannot produce a derivative of order %d", p.PolyOrder, p.Order)
		}
	case SplineDerivative:
		if math.IsNaN(p.Smoothing) || p.Smoothing < 0 || p.Smoothing > 1 {
			return types.Precondition(op, "smoothing factor %v outside [0, 1]", p.Smoothing)
		}
	}
	if p.PreSmooth != nil {
		return p.PreSmooth.validate(op)
	}
	return nil
}

// Summary returns the parameters relevant to the selected method
func (p DerivativeParams) Summary() map[string]any {
	out := map[string]any{
		"order":  p.Order,
		"method": string(p.Method),
	}
	switch p.Method {
	case SavitzkyGolay:
		out["window"] = p.Window
		out["polyorder"] = p.PolyOrder
	case SplineDerivative:
		out["smoothing"] = p.Smoothing
	}
	if p.PreSmooth != nil {
		out["presmooth"] = string(p.PreSmooth.Method)
	}
	return out
}

// polyOrder resolves the ConstantFit sentinel
func (s Smoothing) polyOrder() int {
	if s.PolyOrder == ConstantFit {
		return 0
	}
	return s.PolyOrder
}

func (s Smoothing) withDefaults() Smoothing {
	switch s.Method {
	case SmoothSavitzkyGolay:
		if s.Window == 0 {
			s.Window = 7
		}
		if s.PolyOrder == 0 {
			s.PolyOrder = 3
		}
	case SmoothMedian:
		if s.Window == 0 {
			s.Window = 5
		}
	case SmoothGaussian:
		if s.Sigma == 0 {
			s.Sigma = 1
		}
	}
	return s
}

func (s Smoothing) validate(op string) error {
	switch s.Method {
	case SmoothSavitzkyGolay:
		return checkSGWindow(op, s.Window, s.polyOrder())
	case SmoothMedian:
		if s.Window < 1 || s.Window%2 == 0 {
			return types.Precondition(op, "median window %d must be odd and positive", s.Window)
		}
	case SmoothGaussian:
		if !(s.Sigma > 0) {
			return types.Precondition(op, "gaussian sigma %v must be positive", s.Sigma)
		}
	case SmoothLowpass:
		if s.CutoffHz < 0 || math.IsNaN(s.CutoffHz) {
			return types.Precondition(op, "lowpass cutoff %v must be positive", s.CutoffHz)
		}
	default:
		return types.Unavailable(op, string(s.Method), "unknown smoothing method", "use savitzky_golay, gaussian, median or lowpass")
	}
	return nil
}

func checkSGWindow(op string, window, polyorder int) error {
	if window < 1 || window%2 == 0 {
		return types.Precondition(op, "savitzky-golay window %d must be odd and positive", window)
	}
	if polyorder < 0 || window <= polyorder {
		return types.Precondition(op, "savitzky-golay window %d must exceed polyorder %d", window, polyorder)
	}
	return nil
}
