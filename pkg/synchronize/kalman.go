package synchronize

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// kalman aligns each series with a constant-velocity (level, slope)
// filter run forward over the series' samples and the grid, then smoothed
// backward with Rauch-Tung-Striebel. Grid points outside a series' observed
// range stay NaN.
type kalman struct{}

func (kalman) Name() Method {
	return KalmanAlign
}

// DefaultGrid is the merged event timeline of every input
func (kalman) DefaultGrid(in *Input, w types.TimeWindow) []float64 {
	return mergedTimeline(in, w)
}

func (k kalman) Align(ctx context.Context, in *Input) (*Alignment, error) {
	out := &Alignment{
		Values: make(map[string][]float64, len(in.Names)),
		Info:   make(map[string]provenance.InterpolationInfo, len(in.Names)),
	}

	var errSum, confSum float64
	for _, name := range in.Names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fit, err := k.alignOne(in.Times[name], in.Values[name], in.Grid, in.Params.Kalman)
		if err != nil {
			return nil, tagSeries(err, name)
		}
		out.Values[name] = fit.values
		out.Info[name] = fit.info
		errSum += fit.normalizedRMS
		confSum += fit.confidence
	}

	n := float64(len(in.Names))
	out.AlignmentError = errSum / n
	out.Confidence = math.Max(0, math.Min(1, confSum/n))
	return out, nil
}

type kalmanFit struct {
	values []float64
	info   provenance.InterpolationInfo
	// normalizedRMS is the innovation RMS over the series' standard deviation
	normalizedRMS float64
	// confidence is the mean of R/S over all updates
	confidence float64
}

func (kalman) alignOne(t, values, grid []float64, kp KalmanParams) (*kalmanFit, error) {
	const op = OpSynchronize
	method := string(KalmanAlign)

	var vt, vy []float64
	for i, v := range values {
		if !math.IsNaN(v) {
			vt = append(vt, t[i])
			vy = append(vy, v)
		}
	}
	if len(vt) < 2 {
		return nil, types.Insufficient(op, method, 2, len(vt))
	}

	r, q := noiseFor(vt, vy, kp)
	first, last := vt[0], vt[len(vt)-1]

	// timeline: own samples plus grid points inside the observed range
	timeline := append([]float64(nil), vt...)
	for _, x := range grid {
		if x >= first && x <= last {
			timeline = append(timeline, x)
		}
	}
	sort.Float64s(timeline)
	timeline = dedupe(timeline)

	obs := make(map[float64]float64, len(vt))
	for i, x := range vt {
		obs[x] = vy[i]
	}

	steps := len(timeline)
	xf := make([]*mat.VecDense, steps)
	pf := make([]*mat.Dense, steps)
	xp := make([]*mat.VecDense, steps)
	pp := make([]*mat.Dense, steps)
	fs := make([]*mat.Dense, steps)

	dt0 := vt[1] - vt[0]
	xf[0] = mat.NewVecDense(2, []float64{vy[0], (vy[1] - vy[0]) / dt0})
	pf[0] = mat.NewDense(2, 2, []float64{r, 0, 0, 2 * r / (dt0 * dt0)})
	xp[0], pp[0] = xf[0], pf[0]

	var sqInnov, ratioSum float64
	updates := 0

	for k := 1; k < steps; k++ {
		dt := timeline[k] - timeline[k-1]
		f := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
		qm := mat.NewDense(2, 2, []float64{
			q * dt * dt * dt / 3, q * dt * dt / 2,
			q * dt * dt / 2, q * dt,
		})
		fs[k] = f

		// predict
		var x mat.VecDense
		x.MulVec(f, xf[k-1])
		var fp, p mat.Dense
		fp.Mul(f, pf[k-1])
		p.Mul(&fp, f.T())
		p.Add(&p, qm)
		xp[k], pp[k] = &x, &p

		z, observed := obs[timeline[k]]
		if !observed {
			xf[k], pf[k] = &x, &p
			continue
		}

		// update with H = [1 0]
		s := p.At(0, 0) + r
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, types.Degenerate(op, method, "innovation covariance %v at t=%v", s, timeline[k])
		}
		innov := z - x.AtVec(0)
		gain := mat.NewVecDense(2, []float64{p.At(0, 0) / s, p.At(1, 0) / s})

		xu := mat.NewVecDense(2, nil)
		xu.AddScaledVec(&x, innov, gain)

		// Joseph form keeps P symmetric positive definite
		ikh := mat.NewDense(2, 2, []float64{1 - gain.AtVec(0), 0, -gain.AtVec(1), 1})
		var tmp, pu mat.Dense
		tmp.Mul(ikh, &p)
		pu.Mul(&tmp, ikh.T())
		var krk mat.Dense
		krk.Outer(r, gain, gain)
		pu.Add(&pu, &krk)

		xf[k], pf[k] = xu, &pu
		sqInnov += innov * innov
		ratioSum += r / s
		updates++
	}

	// Rauch-Tung-Striebel backward pass
	xs := make([]*mat.VecDense, steps)
	xs[steps-1] = xf[steps-1]
	for k := steps - 2; k >= 0; k-- {
		var inv mat.Dense
		if err := inv.Inverse(pp[k+1]); err != nil {
			return nil, types.Degenerate(op, method, "singular predicted covariance at t=%v", timeline[k+1])
		}
		var c, pft mat.Dense
		pft.Mul(pf[k], fs[k+1].T())
		c.Mul(&pft, &inv)

		var diff, corr mat.VecDense
		diff.SubVec(xs[k+1], xp[k+1])
		corr.MulVec(&c, &diff)
		x := mat.NewVecDense(2, nil)
		x.AddVec(xf[k], &corr)
		xs[k] = x
	}

	level := make(map[float64]float64, steps)
	for k, x := range timeline {
		level[x] = xs[k].AtVec(0)
	}

	fit := &kalmanFit{
		values: make([]float64, len(grid)),
		info:   provenance.NewInfo(len(grid)),
	}
	for g, x := range grid {
		v, ok := level[x]
		if !ok {
			fit.values[g] = math.NaN()
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, types.Degenerate(op, method, "non-finite estimate at t=%v", x)
		}
		fit.values[g] = v
		fit.info.Mark(g, provenance.MethodKalman)
	}

	if updates > 0 {
		rms := math.Sqrt(sqInnov / float64(updates))
		if sd := stat.StdDev(vy, nil); sd > 0 {
			rms /= sd
		}
		fit.normalizedRMS = rms
		fit.confidence = ratioSum / float64(updates)
	}
	return fit, nil
}

// noiseFor returns the measurement variance R and process density q.
// Unset values come from the second differences of the samples, whose
// variance is six times the measurement variance for white noise.
func noiseFor(vt, vy []float64, kp KalmanParams) (r, q float64) {
	scale := stat.Variance(vy, nil)
	if math.IsNaN(scale) || scale == 0 {
		scale = 1
	}
	floor := 1e-9 * scale

	var d2var float64
	if len(vy) >= 4 {
		d2 := make([]float64, len(vy)-2)
		for i := 1; i < len(vy)-1; i++ {
			d2[i-1] = vy[i+1] - 2*vy[i] + vy[i-1]
		}
		d2var = stat.Variance(d2, nil)
	}

	r = kp.MeasurementNoise
	if r == 0 {
		r = math.Max(d2var/6, floor)
	}
	q = kp.ProcessNoise
	if q == 0 {
		dt := types.MedianSpacing(vt)
		q = math.Max(d2var, floor) / (dt * dt * dt)
	}
	return r, q
}
