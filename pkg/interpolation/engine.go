// Package interpolation fills gaps in a series and resamples it onto new
// timestamps. Every method fits the valid points and then predicts at the
// query times; original samples always pass through unchanged.
package interpolation

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// Operation identifiers used in metadata, lineage and cache keys
const (
	OpInterpolate = "interp.interpolate"
	OpResample    = "interp.resample"
)

const (
	defaultMaxGPRPoints  = 1000
	defaultMaxGridPoints = 10_000_000
)

// Engine runs interpolation methods. It is safe for concurrent use; the
// only shared state is the optional cache.
type Engine struct {
	cache         *cache.Cache
	log           logrus.FieldLogger
	disabled      map[provenance.Method]string
	defaultMethod provenance.Method
	maxGPRPoints  int
	maxGridPoints int
}

// Option configures an Engine
type Option func(*Engine)

// WithCache memoizes results in c
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithDisabled makes method unavailable, reporting reason to callers
func WithDisabled(method provenance.Method, reason string) Option {
	return func(e *Engine) { e.disabled[method] = reason }
}

// WithDefaultMethod sets the method used when Params.Method is empty
func WithDefaultMethod(method provenance.Method) Option {
	return func(e *Engine) { e.defaultMethod = method }
}

// WithMaxGPRPoints sets the gpr point-count ceiling
func WithMaxGPRPoints(n int) Option {
	return func(e *Engine) { e.maxGPRPoints = n }
}

// WithMaxGridPoints bounds the size of generated resample grids
func WithMaxGridPoints(n int) Option {
	return func(e *Engine) { e.maxGridPoints = n }
}

// NewEngine creates an interpolation engine
func NewEngine(opts ...Option) *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)

	e := &Engine{
		log:           l,
		disabled:      make(map[provenance.Method]string),
		defaultMethod: provenance.MethodLinear,
		maxGPRPoints:  defaultMaxGPRPoints,
		maxGridPoints: defaultMaxGridPoints,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "interpolation")
	return e
}

// Methods lists the methods this engine will run
func (e *Engine) Methods() []provenance.Method {
	var out []provenance.Method
	for m := range methods {
		if _, off := e.disabled[m]; !off {
			out = append(out, m)
		}
	}
	if _, off := e.disabled[provenance.MethodResampleGrid]; !off {
		out = append(out, provenance.MethodResampleGrid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) checkMethod(op string, m provenance.Method) error {
	if reason, off := e.disabled[m]; off {
		return types.Unavailable(op, string(m), reason, "construct the engine without disabling this method")
	}
	if m == provenance.MethodResampleGrid {
		return nil
	}
	if _, ok := methods[m]; !ok {
		names := make([]string, 0, len(methods))
		for _, known := range e.Methods() {
			names = append(names, string(known))
		}
		return types.Unavailable(op, string(m), "unknown interpolation method", "use one of: "+strings.Join(names, ", "))
	}
	return nil
}

// ScopeKey adds the engine's ceilings and disabled methods to kb, so
// engines sharing a cache never serve each other results their own limits
// would refuse.
func (e *Engine) ScopeKey(kb *cache.KeyBuilder) *cache.KeyBuilder {
	off := make([]string, 0, len(e.disabled))
	for m := range e.disabled {
		off = append(off, string(m))
	}
	sort.Strings(off)
	return kb.
		Int("max_gpr_points", e.maxGPRPoints).
		Int("max_grid_points", e.maxGridPoints).
		String("disabled", strings.Join(off, ","))
}

// checkCost enforces the minimum point count and the gpr ceiling before
// anything is fitted.
func (e *Engine) checkCost(op string, p Params, valid int) error {
	spec := methods[p.Method]
	if need := spec.minPoints(p); valid < need {
		return types.Insufficient(op, string(p.Method), need, valid)
	}
	if p.Method == provenance.MethodGPR && e.maxGPRPoints > 0 && valid > e.maxGPRPoints {
		err := types.ResourceLimit(op, string(p.Method), e.maxGPRPoints, valid)
		err.Hint = "downsample first or raise the gpr point ceiling"
		return err
	}
	return nil
}

// Interpolate fills the NaN gaps of values. The result has the same length
// as the input; non-gap values are copied exactly.
func (e *Engine) Interpolate(ctx context.Context, values, t []float64, p Params) (*InterpResult, error) {
	p = p.withDefaults(e.defaultMethod)
	if err := types.CheckSeries(OpInterpolate, values, t); err != nil {
		return nil, err
	}
	if err := p.validate(OpInterpolate); err != nil {
		return nil, err
	}
	if err := e.checkMethod(OpInterpolate, p.Method); err != nil {
		return nil, err
	}
	if p.Method == provenance.MethodResampleGrid {
		if err := e.checkMethod(OpInterpolate, p.Grid.Method); err != nil {
			return nil, err
		}
	}

	key := e.ScopeKey(cache.NewKey(OpInterpolate).
		Floats("values", values).
		Floats("t", t).
		Floats("grid", p.Grid.Timestamps).
		Params(p)).
		Key()

	return cache.GetOrCompute(ctx, e.cache, key, func() (*InterpResult, error) {
		if p.Method == provenance.MethodResampleGrid {
			return e.resampleGrid(values, t, p)
		}
		return e.fill(values, t, p)
	})
}

// Resample evaluates the series at query timestamps with p.Method. Query
// points that coincide with a valid sample keep its value.
func (e *Engine) Resample(ctx context.Context, values, t, query []float64, p Params) (*InterpResult, error) {
	p = p.withDefaults(e.defaultMethod)
	if err := types.CheckSeries(OpResample, values, t); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, types.Precondition(OpResample, "empty query timestamps")
	}
	if err := types.CheckTimestamps(OpResample, query); err != nil {
		return nil, err
	}
	if p.Method == provenance.MethodResampleGrid {
		p.Grid.Timestamps = query
		return e.Interpolate(ctx, values, t, p)
	}
	if err := p.validate(OpResample); err != nil {
		return nil, err
	}
	if err := e.checkMethod(OpResample, p.Method); err != nil {
		return nil, err
	}

	key := e.ScopeKey(cache.NewKey(OpResample).
		Floats("values", values).
		Floats("t", t).
		Floats("query", query).
		Params(p)).
		Key()

	return cache.GetOrCompute(ctx, e.cache, key, func() (*InterpResult, error) {
		start := time.Now()
		res, err := e.resampleAt(OpResample, values, t, query, p)
		if err != nil {
			return nil, err
		}
		res.Metadata = types.NewMetadata(OpResample, string(p.Method), p.Summary(), start)
		e.logDone(res)
		return res, nil
	})
}

// InterpolateSeries fills the gaps of s and returns the derived series.
// Points s already marked as interpolated keep their earlier tag.
func (e *Engine) InterpolateSeries(ctx context.Context, s *provenance.Series, p Params) (*provenance.Series, *InterpResult, error) {
	res, err := e.Interpolate(ctx, s.Values, s.Timestamps, p)
	if err != nil {
		return nil, nil, withSeries(err, s)
	}
	return e.derive(s, res, OpInterpolate)
}

// ResampleSeries evaluates s at query and returns the derived series
func (e *Engine) ResampleSeries(ctx context.Context, s *provenance.Series, query []float64, p Params) (*provenance.Series, *InterpResult, error) {
	res, err := e.Resample(ctx, s.Values, s.Timestamps, query, p)
	if err != nil {
		return nil, nil, withSeries(err, s)
	}
	return e.derive(s, res, OpResample)
}

func (e *Engine) derive(s *provenance.Series, res *InterpResult, op string) (*provenance.Series, *InterpResult, error) {
	info := res.Info.Clone()
	if s.Info.Len() == s.Len() {
		for i, src := range res.SourceIndex {
			if src >= 0 {
				info.Interpolated[i] = s.Info.Interpolated[src]
				info.Methods[i] = s.Info.Methods[src]
			}
		}
	}

	derived, err := s.Derive(op, res.Metadata.Parameters, res.Timestamps, res.Values, info)
	if err != nil {
		return nil, nil, err
	}
	return derived, res, nil
}

func withSeries(err error, s *provenance.Series) error {
	var te *types.Error
	if errors.As(err, &te) {
		return te.WithSeries(string(s.ID))
	}
	return err
}

// fill estimates every gap of values in place of a copy
func (e *Engine) fill(values, t []float64, p Params) (*InterpResult, error) {
	start := time.Now()
	vt, vy := validPoints(t, values)
	if err := e.checkCost(OpInterpolate, p, len(vt)); err != nil {
		return nil, err
	}

	n := len(values)
	var gaps []int
	var gapTimes []float64
	for i, v := range values {
		if math.IsNaN(v) {
			gaps = append(gaps, i)
			gapTimes = append(gapTimes, t[i])
		}
	}

	est, err := e.estimate(OpInterpolate, vt, vy, gapTimes, p)
	if err != nil {
		return nil, err
	}

	res := &InterpResult{
		Timestamps:          types.CloneFloats(t),
		Info:                provenance.NewInfo(n),
		SourceIndex:         make([]int, n),
		DominantFrequencies: est.freqs,
		FrequencyPowers:     est.powers,
	}
	out := types.CloneFloats(values)
	for i := range res.SourceIndex {
		res.SourceIndex[i] = i
	}
	if p.Method == provenance.MethodGPR {
		res.Uncertainty = make([]float64, n)
	}

	for k, i := range gaps {
		res.SourceIndex[i] = -1
		v := est.values[k]
		if math.IsNaN(v) {
			if res.Uncertainty != nil {
				res.Uncertainty[i] = math.NaN()
			}
			continue
		}
		out[i] = v
		res.Info.Mark(i, p.Method)
		if res.Uncertainty != nil {
			res.Uncertainty[i] = est.std[k]
		}
	}

	q := types.CountQuality(out, res.Info.Interpolated)
	res.Values = out
	res.Quality = &q
	res.Metadata = types.NewMetadata(OpInterpolate, string(p.Method), p.Summary(), start)
	e.logDone(res)
	return res, nil
}

// resampleAt evaluates p.Method at query
func (e *Engine) resampleAt(op string, values, t, query []float64, p Params) (*InterpResult, error) {
	vt, vy := validPoints(t, values)
	if err := e.checkCost(op, p, len(vt)); err != nil {
		return nil, err
	}

	n := len(query)
	res := &InterpResult{
		Timestamps:  types.CloneFloats(query),
		Info:        provenance.NewInfo(n),
		SourceIndex: make([]int, n),
	}
	out := make([]float64, n)

	var pending []int
	var pendingTimes []float64
	for q, x := range query {
		if i, ok := sampleAt(t, values, x); ok {
			out[q] = values[i]
			res.SourceIndex[q] = i
			continue
		}
		res.SourceIndex[q] = -1
		pending = append(pending, q)
		pendingTimes = append(pendingTimes, x)
	}

	est, err := e.estimate(op, vt, vy, pendingTimes, p)
	if err != nil {
		return nil, err
	}
	res.DominantFrequencies, res.FrequencyPowers = est.freqs, est.powers
	if p.Method == provenance.MethodGPR {
		res.Uncertainty = make([]float64, n)
	}

	for k, q := range pending {
		out[q] = est.values[k]
		if math.IsNaN(out[q]) {
			if res.Uncertainty != nil {
				res.Uncertainty[q] = math.NaN()
			}
			continue
		}
		res.Info.Mark(q, p.Method)
		if res.Uncertainty != nil {
			res.Uncertainty[q] = est.std[k]
		}
	}

	qm := types.CountQuality(out, res.Info.Interpolated)
	res.Values = out
	res.Quality = &qm
	return res, nil
}

// estimation is the method output at a set of query times; values are NaN
// where no estimate exists.
type estimation struct {
	values []float64
	std    []float64
	freqs  []float64
	powers []float64
}

// estimate fits p.Method to (vt, vy) and predicts at xs. Queries outside
// the valid range follow the extrapolation policy instead.
func (e *Engine) estimate(op string, vt, vy, xs []float64, p Params) (estimation, error) {
	est := estimation{values: make([]float64, len(xs))}
	if p.Method == provenance.MethodGPR {
		est.std = make([]float64, len(xs))
	}

	var inner []int
	var innerX []float64
	for q, x := range xs {
		if len(vt) > 0 && x >= vt[0] && x <= vt[len(vt)-1] {
			inner = append(inner, q)
			innerX = append(innerX, x)
			continue
		}
		est.values[q] = extrapolate(vt, vy, x, p.Extrapolation)
		if est.std != nil {
			est.std[q] = math.NaN()
		}
	}

	if len(vt) == 0 || (len(inner) == 0 && p.Method != provenance.MethodLombScargle) {
		return est, nil
	}

	m, err := methods[p.Method].fit(vt, vy, p)
	if err != nil {
		return est, types.Degenerate(op, string(p.Method), "fit failed: %v", err)
	}
	if s, ok := m.(spectral); ok {
		est.freqs, est.powers = s.frequencies()
	}
	if len(inner) == 0 {
		return est, nil
	}

	pred, err := m.predict(innerX)
	if err != nil {
		return est, types.Degenerate(op, string(p.Method), "prediction failed: %v", err)
	}
	for k, q := range inner {
		v := pred.values[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return est, types.Degenerate(op, string(p.Method), "non-finite estimate at t=%v", innerX[k])
		}
		est.values[q] = v
		if est.std != nil && pred.std != nil {
			est.std[q] = pred.std[k]
		}
	}
	return est, nil
}

func (e *Engine) logDone(res *InterpResult) {
	fields := logrus.Fields{
		"op":       res.Metadata.Operation,
		"method":   res.Metadata.Method,
		"points":   len(res.Values),
		"duration": res.Metadata.Duration,
	}
	if res.Quality != nil {
		fields["filled"] = res.Quality.Interpolated
		fields["nan"] = res.Quality.NaN
	}
	e.log.WithFields(fields).Debug("interpolation complete")
}

// validPoints returns the samples whose value is not NaN
func validPoints(t, values []float64) (vt, vy []float64) {
	vt = make([]float64, 0, len(t))
	vy = make([]float64, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			vt = append(vt, t[i])
			vy = append(vy, v)
		}
	}
	return vt, vy
}

// sampleAt returns the index of a valid sample at exactly x
func sampleAt(t, values []float64, x float64) (int, bool) {
	i := sort.SearchFloat64s(t, x)
	if i < len(t) && t[i] == x && !math.IsNaN(values[i]) {
		return i, true
	}
	return -1, false
}

func extrapolate(vt, vy []float64, x float64, policy Extrapolation) float64 {
	n := len(vt)
	if n == 0 || policy == ExtrapolateNone {
		return math.NaN()
	}

	end, inner := 0, 1
	if x > vt[n-1] {
		end, inner = n-1, n-2
	}

	switch policy {
	case ExtrapolateNearest:
		return vy[end]
	case ExtrapolateLinear:
		if n < 2 {
			return math.NaN()
		}
		slope := (vy[end] - vy[inner]) / (vt[end] - vt[inner])
		return vy[end] + slope*(x-vt[end])
	}
	return math.NaN()
}
