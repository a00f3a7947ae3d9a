package interpolation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Spline is a natural cubic smoothing spline in Reinsch form: knot values
// g and second derivatives gamma (zero at both ends). With smoothing 0 it
// interpolates every knot exactly.
type Spline struct {
	x0, scale float64
	u         []float64
	g         []float64
	gamma     []float64
}

// FitSpline fits a smoothing spline through (x, y). smoothing in [0, 1]
// moves the fit from exact interpolation (0) to the least-squares line (1).
// x must be strictly increasing.
func FitSpline(x, y []float64, smoothing float64) (*Spline, error) {
	n := len(x)
	if n != len(y) {
		return nil, fmt.Errorf("spline: x and y differ in length (%d != %d)", n, len(y))
	}
	if n < 2 {
		return nil, errors.New("spline: need at least 2 knots")
	}
	if smoothing < 0 || smoothing > 1 || math.IsNaN(smoothing) {
		return nil, fmt.Errorf("spline: smoothing %v outside [0, 1]", smoothing)
	}

	// normalized abscissa keeps the penalty independent of the time unit
	scale := (x[n-1] - x[0]) / float64(n-1)
	u := make([]float64, n)
	for i := range x {
		u[i] = (x[i] - x[0]) / scale
	}

	s := &Spline{
		x0:    x[0],
		scale: scale,
		u:     u,
		g:     make([]float64, n),
		gamma: make([]float64, n),
	}
	copy(s.g, y)

	m := n - 2
	if m == 0 {
		return s, nil
	}

	h := make([]float64, n-1)
	for i := range h {
		h[i] = u[i+1] - u[i]
	}

	// column k of Q has a at row k, b at row k+1, c at row k+2
	a := make([]float64, m)
	b := make([]float64, m)
	c := make([]float64, m)
	for k := 0; k < m; k++ {
		a[k] = 1 / h[k]
		c[k] = 1 / h[k+1]
		b[k] = -(a[k] + c[k])
	}

	p := 1 - smoothing
	bw := 2
	if m-1 < bw {
		bw = m - 1
	}
	sys := mat.NewSymBandDense(m, bw, nil)
	rhs := mat.NewVecDense(m, nil)
	for k := 0; k < m; k++ {
		r := (h[k] + h[k+1]) / 3
		qq := a[k]*a[k] + b[k]*b[k] + c[k]*c[k]
		sys.SetSymBand(k, k, p*r+(1-p)*qq)
		if k+1 < m {
			r1 := h[k+1] / 6
			qq1 := b[k]*a[k+1] + c[k]*b[k+1]
			sys.SetSymBand(k, k+1, p*r1+(1-p)*qq1)
		}
		if k+2 < m {
			sys.SetSymBand(k, k+2, (1-p)*c[k]*a[k+2])
		}
		rhs.SetVec(k, a[k]*y[k]+b[k]*y[k+1]+c[k]*y[k+2])
	}

	var chol mat.BandCholesky
	if ok := chol.Factorize(sys); !ok {
		return nil, errors.New("spline: system is not positive definite")
	}
	mu := mat.NewVecDense(m, nil)
	if err := chol.SolveVecTo(mu, rhs); err != nil {
		return nil, fmt.Errorf("spline: %w", err)
	}

	for k := 0; k < m; k++ {
		s.gamma[k+1] = p * mu.AtVec(k)
	}
	if p < 1 {
		// g = y - (1-p) Q mu
		for k := 0; k < m; k++ {
			v := (1 - p) * mu.AtVec(k)
			s.g[k] -= v * a[k]
			s.g[k+1] -= v * b[k]
			s.g[k+2] -= v * c[k]
		}
	}

	for i := range s.g {
		if math.IsNaN(s.g[i]) || math.IsInf(s.g[i], 0) || math.IsNaN(s.gamma[i]) || math.IsInf(s.gamma[i], 0) {
			return nil, errors.New("spline: fit produced non-finite coefficients")
		}
	}
	return s, nil
}

// Eval returns the value (order 0) or the order-th derivative at x.
// Beyond the end knots the spline continues as a straight line.
func (s *Spline) Eval(x float64, order int) float64 {
	u := (x - s.x0) / s.scale
	n := len(s.u)

	if u < s.u[0] || u > s.u[n-1] {
		end := 0
		if u > s.u[n-1] {
			end = n - 1
		}
		slope := s.derivativeAt(end)
		switch order {
		case 0:
			return s.g[end] + slope*(u-s.u[end])
		case 1:
			return slope / s.scale
		default:
			return 0
		}
	}

	i := sort.SearchFloat64s(s.u, u)
	if i > 0 {
		i--
	}
	if i >= n-1 {
		i = n - 2
	}

	h := s.u[i+1] - s.u[i]
	a := (s.u[i+1] - u) / h
	b := (u - s.u[i]) / h
	gi, gj := s.g[i], s.g[i+1]
	ci, cj := s.gamma[i], s.gamma[i+1]

	var v float64
	switch order {
	case 0:
		return a*gi + b*gj + ((a*a*a-a)*ci+(b*b*b-b)*cj)*h*h/6
	case 1:
		v = (gj-gi)/h + (-(3*a*a-1)*ci+(3*b*b-1)*cj)*h/6
	case 2:
		v = a*ci + b*cj
	case 3:
		v = (cj - ci) / h
	default:
		return 0
	}
	return v / math.Pow(s.scale, float64(order))
}

// derivativeAt returns the first derivative in normalized units at knot i
func (s *Spline) derivativeAt(i int) float64 {
	n := len(s.u)
	if i == n-1 {
		h := s.u[n-1] - s.u[n-2]
		return (s.g[n-1]-s.g[n-2])/h + (s.gamma[n-2]+2*s.gamma[n-1])*h/6
	}
	h := s.u[1] - s.u[0]
	return (s.g[1]-s.g[0])/h - (2*s.gamma[0]+s.gamma[1])*h/6
}

// EvalAll evaluates the spline at every x
func (s *Spline) EvalAll(xs []float64, order int) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.Eval(x, order)
	}
	return out
}
