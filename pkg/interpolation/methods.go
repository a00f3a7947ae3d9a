package interpolation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/vjranagit/tscore/pkg/provenance"
)

// model is a method fitted to the valid points of a series
type model interface {
	predict(xs []float64) (prediction, error)
}

// prediction holds estimates at query points; std is nil unless the
// method is probabilistic.
type prediction struct {
	values []float64
	std    []float64
}

// spectral is implemented by models that report dominant frequencies
type spectral interface {
	frequencies() (freqs, powers []float64)
}

// methodSpec describes one fit-then-predict method
type methodSpec struct {
	minPoints func(p Params) int
	fit       func(t, y []float64, p Params) (model, error)
}

var methods = map[provenance.Method]methodSpec{
	provenance.MethodLinear: {
		minPoints: func(Params) int { return 0 },
		fit:       fitLinear,
	},
	provenance.MethodSplineCubic: {
		minPoints: func(Params) int { return 4 },
		fit:       fitCubic,
	},
	provenance.MethodSmoothingSpline: {
		minPoints: func(Params) int { return 4 },
		fit:       fitSmoothingSpline,
	},
	provenance.MethodMLS: {
		minPoints: func(p Params) int { return p.MLS.degree() + 1 },
		fit:       fitMLS,
	},
	provenance.MethodGPR: {
		minPoints: func(Params) int { return 2 },
		fit:       fitGPR,
	},
	provenance.MethodLombScargle: {
		minPoints: func(p Params) int { return 2*p.Spectral.Frequencies + 2 },
		fit:       fitLombScargle,
	},
}

// funcModel adapts a scalar predictor
type funcModel func(x float64) float64

func (f funcModel) predict(xs []float64) (prediction, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = f(x)
	}
	return prediction{values: out}, nil
}

func fitLinear(t, y []float64, _ Params) (model, error) {
	if len(t) == 1 {
		v := y[0]
		return funcModel(func(float64) float64 { return v }), nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(t, y); err != nil {
		return nil, err
	}
	return funcModel(pl.Predict), nil
}

func fitCubic(t, y []float64, _ Params) (model, error) {
	var nc interp.NaturalCubic
	if err := nc.Fit(t, y); err != nil {
		return nil, err
	}
	return funcModel(nc.Predict), nil
}

func fitSmoothingSpline(t, y []float64, p Params) (model, error) {
	s, err := FitSpline(t, y, p.Spline.Smoothing)
	if err != nil {
		return nil, err
	}
	return funcModel(func(x float64) float64 { return s.Eval(x, 0) }), nil
}

// mlsModel fits a tricube-weighted polynomial around each query point
type mlsModel struct {
	t, y   []float64
	window int
	degree int
}

func fitMLS(t, y []float64, p Params) (model, error) {
	w := p.MLS.Window
	if w > len(t) {
		w = len(t)
	}
	return &mlsModel{t: t, y: y, window: w, degree: p.MLS.degree()}, nil
}

func (m *mlsModel) predict(xs []float64) (prediction, error) {
	out := make([]float64, len(xs))
	lx := make([]float64, m.window)
	ly := make([]float64, m.window)
	lw := make([]float64, m.window)

	for q, x := range xs {
		lo, hi := nearestWindow(m.t, x, m.window)

		maxDist := 0.0
		for i := lo; i < hi; i++ {
			maxDist = math.Max(maxDist, math.Abs(m.t[i]-x))
		}
		// keep the farthest point in play with a small weight
		maxDist *= 1.0001
		if maxDist == 0 {
			maxDist = 1
		}

		for k, i := 0, lo; i < hi; k, i = k+1, i+1 {
			d := (m.t[i] - x) / maxDist
			lx[k] = d
			ly[k] = m.y[i]
			c := 1 - math.Abs(d*d*d)
			lw[k] = c * c * c
		}

		coef, err := PolyFit(lx, ly, lw, m.degree)
		if err != nil {
			return prediction{}, err
		}
		out[q] = coef[0]
	}
	return prediction{values: out}, nil
}

// nearestWindow returns [lo, hi) spanning the w samples of t nearest to x
func nearestWindow(t []float64, x float64, w int) (lo, hi int) {
	n := len(t)
	if w >= n {
		return 0, n
	}
	i := sort.SearchFloat64s(t, x)
	lo, hi = i, i
	for hi-lo < w {
		switch {
		case lo == 0:
			hi++
		case hi == n:
			lo--
		case x-t[lo-1] <= t[hi]-x:
			lo--
		default:
			hi++
		}
	}
	return lo, hi
}
