package interpolation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/vjranagit/tscore/pkg/types"
)

// gprModel is a zero-mean Gaussian process on the centered data with an
// RBF kernel.
type gprModel struct {
	t           []float64
	mean        float64
	lengthScale float64
	signalVar   float64
	chol        mat.Cholesky
	alpha       *mat.VecDense
}

func fitGPR(t, y []float64, p Params) (model, error) {
	n := len(t)
	mean, variance := stat.MeanVariance(y, nil)

	m := &gprModel{
		t:           t,
		mean:        mean,
		lengthScale: p.GPR.LengthScale,
		signalVar:   p.GPR.SignalVariance,
	}
	if m.signalVar == 0 {
		m.signalVar = variance
		if !(m.signalVar > 0) {
			m.signalVar = 1
		}
	}
	if m.lengthScale == 0 {
		m.lengthScale = 3 * types.MedianSpacing(t)
	}
	noise := p.GPR.NoiseVariance
	if noise == 0 {
		noise = 1e-6 * m.signalVar
	}

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, m.signalVar+noise)
		for j := i + 1; j < n; j++ {
			k.SetSym(i, j, m.kernel(t[i], t[j]))
		}
	}
	if ok := m.chol.Factorize(k); !ok {
		return nil, errors.New("gpr: kernel matrix is not positive definite")
	}

	centered := make([]float64, n)
	for i, v := range y {
		centered[i] = v - mean
	}
	m.alpha = mat.NewVecDense(n, nil)
	if err := m.chol.SolveVecTo(m.alpha, mat.NewVecDense(n, centered)); err != nil {
		return nil, fmt.Errorf("gpr: %w", err)
	}
	return m, nil
}

func (m *gprModel) kernel(a, b float64) float64 {
	d := (a - b) / m.lengthScale
	return m.signalVar * math.Exp(-0.5*d*d)
}

func (m *gprModel) predict(xs []float64) (prediction, error) {
	n := len(m.t)
	out := prediction{
		values: make([]float64, len(xs)),
		std:    make([]float64, len(xs)),
	}

	ks := mat.NewVecDense(n, nil)
	v := mat.NewVecDense(n, nil)
	for q, x := range xs {
		for i, ti := range m.t {
			ks.SetVec(i, m.kernel(x, ti))
		}
		out.values[q] = m.mean + mat.Dot(ks, m.alpha)

		if err := m.chol.SolveVecTo(v, ks); err != nil {
			return prediction{}, fmt.Errorf("gpr: %w", err)
		}
		variance := m.signalVar - mat.Dot(ks, v)
		out.std[q] = math.Sqrt(math.Max(variance, 0))
	}
	return out, nil
}
