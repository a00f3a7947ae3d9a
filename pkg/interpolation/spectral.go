package interpolation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// spectralModel is a sum of sinusoids at the dominant Lomb-Scargle
// frequencies, fitted by least squares.
type spectralModel struct {
	t0     float64
	freqs  []float64
	powers []float64
	coef   []float64
}

func fitLombScargle(t, y []float64, p Params) (model, error) {
	mean, variance := stat.MeanVariance(y, nil)
	m := &spectralModel{t0: t[0]}
	if !(variance > 0) {
		m.coef = []float64{mean}
		return m, nil
	}

	freqs, powers := periodogram(t, y, mean, variance, p.Spectral.Oversampling)
	m.freqs, m.powers = dominantPeaks(freqs, powers, p.Spectral.Frequencies)

	a := mat.NewDense(len(t), 1+2*len(m.freqs), nil)
	for i, ti := range t {
		a.Set(i, 0, 1)
		for k, f := range m.freqs {
			w := 2 * math.Pi * f * (ti - m.t0)
			a.Set(i, 1+2*k, math.Cos(w))
			a.Set(i, 2+2*k, math.Sin(w))
		}
	}

	coef, err := LeastSquares(a, y)
	if err != nil {
		return nil, fmt.Errorf("lomb-scargle: %w", err)
	}
	m.coef = coef
	return m, nil
}

func (m *spectralModel) predict(xs []float64) (prediction, error) {
	out := make([]float64, len(xs))
	for q, x := range xs {
		v := m.coef[0]
		for k, f := range m.freqs {
			w := 2 * math.Pi * f * (x - m.t0)
			v += m.coef[1+2*k]*math.Cos(w) + m.coef[2+2*k]*math.Sin(w)
		}
		out[q] = v
	}
	return prediction{values: out}, nil
}

func (m *spectralModel) frequencies() (freqs, powers []float64) {
	return m.freqs, m.powers
}

// periodogram evaluates the normalized Lomb-Scargle power on a grid from
// 1/(T*ofac) up to the average Nyquist frequency n/(2T).
func periodogram(t, y []float64, mean, variance, ofac float64) (freqs, powers []float64) {
	n := len(t)
	span := t[n-1] - t[0]
	df := 1 / (span * ofac)
	nf := int(ofac * float64(n) / 2)
	if nf < 1 {
		nf = 1
	}

	freqs = make([]float64, nf)
	powers = make([]float64, nf)
	for k := 0; k < nf; k++ {
		f := df * float64(k+1)
		w := 2 * math.Pi * f

		var s2, c2 float64
		for _, ti := range t {
			s2 += math.Sin(2 * w * ti)
			c2 += math.Cos(2 * w * ti)
		}
		tau := math.Atan2(s2, c2) / (2 * w)

		var yc, ys, cc, ss float64
		for i, ti := range t {
			c := math.Cos(w * (ti - tau))
			s := math.Sin(w * (ti - tau))
			d := y[i] - mean
			yc += d * c
			ys += d * s
			cc += c * c
			ss += s * s
		}

		var pw float64
		if cc > 1e-12 {
			pw += yc * yc / cc
		}
		if ss > 1e-12 {
			pw += ys * ys / ss
		}
		freqs[k] = f
		powers[k] = pw / (2 * variance)
	}
	return freqs, powers
}

// dominantPeaks returns up to k local maxima of powers, strongest first
func dominantPeaks(freqs, powers []float64, k int) ([]float64, []float64) {
	var idx []int
	for i := range powers {
		left := i == 0 || powers[i] > powers[i-1]
		right := i == len(powers)-1 || powers[i] >= powers[i+1]
		if left && right && powers[i] > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return powers[idx[a]] > powers[idx[b]] })
	if len(idx) > k {
		idx = idx[:k]
	}

	outF := make([]float64, len(idx))
	outP := make([]float64, len(idx))
	for j, i := range idx {
		outF[j] = freqs[i]
		outP[j] = powers[i]
	}
	return outF, outP
}
