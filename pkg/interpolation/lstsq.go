package interpolation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LeastSquares solves min ||A c - b|| by QR factorization. A must have at
// least as many rows as columns and full column rank.
func LeastSquares(a *mat.Dense, b []float64) ([]float64, error) {
	rows, cols := a.Dims()
	if rows != len(b) {
		return nil, fmt.Errorf("lstsq: %d rows but %d observations", rows, len(b))
	}
	if rows < cols {
		return nil, fmt.Errorf("lstsq: underdetermined system %dx%d", rows, cols)
	}

	var qr mat.QR
	qr.Factorize(a)

	// a near-zero diagonal in R means rank deficiency
	var r mat.Dense
	qr.RTo(&r)
	maxDiag := 0.0
	for i := 0; i < cols; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(r.At(i, i)))
	}
	for i := 0; i < cols; i++ {
		if math.Abs(r.At(i, i)) <= 1e-12*maxDiag || maxDiag == 0 {
			return nil, errors.New("lstsq: design matrix is rank deficient")
		}
	}

	c := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(c, false, mat.NewVecDense(rows, b)); err != nil {
		return nil, fmt.Errorf("lstsq: %w", err)
	}
	return c.RawVector().Data, nil
}

// PolyFit fits a polynomial of the given degree to (x, y) with optional
// per-point weights and returns coefficients lowest order first.
func PolyFit(x, y, w []float64, degree int) ([]float64, error) {
	if degree < 0 {
		return nil, fmt.Errorf("polyfit: negative degree %d", degree)
	}
	if len(x) != len(y) || (w != nil && len(w) != len(x)) {
		return nil, errors.New("polyfit: length mismatch")
	}

	a := mat.NewDense(len(x), degree+1, nil)
	b := make([]float64, len(y))
	for i := range x {
		sw := 1.0
		if w != nil {
			sw = math.Sqrt(w[i])
		}
		p := sw
		for j := 0; j <= degree; j++ {
			a.Set(i, j, p)
			p *= x[i]
		}
		b[i] = sw * y[i]
	}
	return LeastSquares(a, b)
}
