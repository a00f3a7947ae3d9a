package calculus

import (
	"github.com/vjranagit/tscore/pkg/interpolation"
	"github.com/vjranagit/tscore/pkg/types"
)

// minDerivativePoints is the smallest input each method accepts
func minDerivativePoints(p DerivativeParams) int {
	switch p.Method {
	case SavitzkyGolay:
		return p.Window
	case SplineDerivative:
		return 4
	default:
		return p.Order + 1
	}
}

// finiteDiff applies the first-difference operator order times: central
// differences inside, one-sided at both ends.
func finiteDiff(values, t []float64, order int) []float64 {
	cur := values
	for k := 0; k < order; k++ {
		cur = firstDifference(cur, t)
	}
	return cur
}

func firstDifference(y, t []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (y[1] - y[0]) / (t[1] - t[0])
	for i := 1; i < n-1; i++ {
		out[i] = (y[i+1] - y[i-1]) / (t[i+1] - t[i-1])
	}
	out[n-1] = (y[n-1] - y[n-2]) / (t[n-1] - t[n-2])
	return out
}

func splineDerivative(op string, values, t []float64, order int, smoothing float64) ([]float64, error) {
	s, err := interpolation.FitSpline(t, values, smoothing)
	if err != nil {
		return nil, types.Degenerate(op, string(SplineDerivative), "%v", err)
	}
	return s.EvalAll(t, order), nil
}

// differentiate dispatches to the selected method
func differentiate(op string, values, t []float64, p DerivativeParams) ([]float64, error) {
	switch p.Method {
	case FiniteDiff:
		return finiteDiff(values, t, p.Order), nil
	case SavitzkyGolay:
		return savgol(op, values, t, p.Window, p.PolyOrder, p.Order)
	case SplineDerivative:
		return splineDerivative(op, values, t, p.Order, p.Smoothing)
	}
	return nil, types.Unavailable(op, string(p.Method), "unknown derivative method", "use finite_diff, savitzky_golay or spline_derivative")
}
