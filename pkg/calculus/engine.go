// Package calculus computes numerical derivatives and integrals of
// gap-free series.
package calculus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// Operation identifiers
const (
	OpDerivative  = "calculus.derivative"
	OpIntegral    = "calculus.integral"
	OpAreaBetween = "calculus.area_between"
)

// CalcResult is the output of every calculus operation. Definite
// integrals hold a single value and no timestamps.
type CalcResult struct {
	types.DerivedResult
	Timestamps []float64 `json:"timestamps,omitempty"`
	Order      int       `json:"order,omitempty"`
}

// Scalar returns the value of a definite integral
func (r *CalcResult) Scalar() float64 {
	if len(r.Values) != 1 {
		return math.NaN()
	}
	return r.Values[0]
}

// SizeBytes estimates the in-memory footprint
func (r *CalcResult) SizeBytes() int64 {
	return 256 + int64(len(r.Values)+len(r.Timestamps))*8
}

// Engine runs calculus operations. It is safe for concurrent use.
type Engine struct {
	cache    *cache.Cache
	log      logrus.FieldLogger
	disabled map[string]string
	defaults DerivativeParams
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

// WithDisabled makes a derivative or integral method unavailable
func WithDisabled(method, reason string) Option {
	return func(e *Engine) { e.disabled[method] = reason }
}

// WithDefaults sets the Method, Window and PolyOrder used when a call
// leaves them zero. The other fields of p are not merged into calls, so
// a zero Order is still refused and a nil PreSmooth still means no
// pre-smoothing; pass DefaultParams as the per-call base to use them.
func WithDefaults(p DerivativeParams) Option {
	return func(e *Engine) { e.defaults = p }
}

// NewEngine creates a calculus engine
func NewEngine(opts ...Option) *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)

	e := &Engine{
		log:      l,
		disabled: make(map[string]string),
		defaults: DefaultDerivativeParams(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "calculus")
	return e
}

// DefaultParams returns the complete params given to WithDefaults
func (e *Engine) DefaultParams() DerivativeParams {
	return e.defaults
}

func (e *Engine) checkDisabled(op, method string) error {
	if reason, off := e.disabled[method]; off {
		return types.Unavailable(op, method, reason, "construct the engine without disabling this method")
	}
	return nil
}

func checkInput(op string, values, t []float64) error {
	if err := types.CheckSeries(op, values, t); err != nil {
		return err
	}
	return types.CheckNoGaps(op, values)
}

// Derivative returns the order-th derivative of values with respect to t,
// the same length as the input.
func (e *Engine) Derivative(ctx context.Context, values, t []float64, p DerivativeParams) (*CalcResult, error) {
	p = p.withDefaults(e.defaults)
	if err := p.validate(OpDerivative); err != nil {
		return nil, err
	}
	if err := e.checkDisabled(OpDerivative, string(p.Method)); err != nil {
		return nil, err
	}
	switch p.Method {
	case FiniteDiff, SavitzkyGolay, SplineDerivative:
	default:
		return nil, types.Unavailable(OpDerivative, string(p.Method), "unknown derivative method", "use finite_diff, savitzky_golay or spline_derivative")
	}
	if err := checkInput(OpDerivative, values, t); err != nil {
		return nil, err
	}
	if need := minDerivativePoints(p); len(values) < need {
		return nil, types.Insufficient(OpDerivative, string(p.Method), need, len(values))
	}

	key := cache.NewKey(OpDerivative).Floats("values", values).Floats("t", t).Params(p).Key()
	return cache.GetOrCompute(ctx, e.cache, key, func() (*CalcResult, error) {
		start := time.Now()

		input := values
		if p.PreSmooth != nil {
			smoothed, err := smooth(OpDerivative, values, t, *p.PreSmooth)
			if err != nil {
				return nil, err
			}
			input = smoothed
		}

		out, err := differentiate(OpDerivative, input, t, p)
		if err != nil {
			return nil, err
		}
		if err := checkFinite(OpDerivative, string(p.Method), out); err != nil {
			return nil, err
		}

		res := newResult(OpDerivative, string(p.Method), p.Summary(), start, out, types.CloneFloats(t))
		res.Order = p.Order
		e.logDone(res)
		return res, nil
	})
}

// Integral integrates values over t. Trapezoid and simpson return a single
// value; cumulative returns the running integral starting at 0.
func (e *Engine) Integral(ctx context.Context, values, t []float64, method IntegralMethod) (*CalcResult, error) {
	switch method {
	case Trapezoid, Simpson, Cumulative:
	default:
		return nil, types.Unavailable(OpIntegral, string(method), "unknown integral method", "use trapezoid, simpson or cumulative")
	}
	if err := e.checkDisabled(OpIntegral, string(method)); err != nil {
		return nil, err
	}
	if err := checkInput(OpIntegral, values, t); err != nil {
		return nil, err
	}

	params := map[string]any{"method": string(method)}
	key := cache.NewKey(OpIntegral).Floats("values", values).Floats("t", t).Params(params).Key()
	return cache.GetOrCompute(ctx, e.cache, key, func() (*CalcResult, error) {
		start := time.Now()
		res := integrate(OpIntegral, values, t, method, params, start)
		if err := checkFinite(OpIntegral, string(method), res.Values); err != nil {
			return nil, err
		}
		e.logDone(res)
		return res, nil
	})
}

// AreaBetween is the cumulative integral of upper - lower
func (e *Engine) AreaBetween(ctx context.Context, upper, lower, t []float64) (*CalcResult, error) {
	if len(upper) != len(lower) {
		return nil, types.Precondition(OpAreaBetween, "upper and lower differ in length (%d != %d)", len(upper), len(lower))
	}
	if err := checkInput(OpAreaBetween, upper, t); err != nil {
		return nil, err
	}
	if err := checkInput(OpAreaBetween, lower, t); err != nil {
		return nil, err
	}

	params := map[string]any{"method": string(Cumulative)}
	key := cache.NewKey(OpAreaBetween).Floats("upper", upper).Floats("lower", lower).Floats("t", t).Key()
	return cache.GetOrCompute(ctx, e.cache, key, func() (*CalcResult, error) {
		start := time.Now()
		diff := make([]float64, len(upper))
		for i := range upper {
			diff[i] = upper[i] - lower[i]
		}
		res := integrate(OpAreaBetween, diff, t, Cumulative, params, start)
		if err := checkFinite(OpAreaBetween, string(Cumulative), res.Values); err != nil {
			return nil, err
		}
		e.logDone(res)
		return res, nil
	})
}

func integrate(op string, values, t []float64, method IntegralMethod, params map[string]any, start time.Time) *CalcResult {
	switch method {
	case Trapezoid:
		return newResult(op, string(method), params, start, []float64{trapezoid(values, t)}, nil)
	case Simpson:
		return newResult(op, string(method), params, start, []float64{simpson(values, t)}, nil)
	default:
		return newResult(op, string(method), params, start, cumulativeTrapezoid(values, t), types.CloneFloats(t))
	}
}

func newResult(op, method string, params any, start time.Time, values, t []float64) *CalcResult {
	q := types.CountQuality(values, nil)
	return &CalcResult{
		DerivedResult: types.DerivedResult{
			Values:   values,
			Metadata: types.NewMetadata(op, method, params, start),
			Quality:  &q,
		},
		Timestamps: t,
	}
}

func checkFinite(op, method string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Degenerate(op, method, "non-finite result at index %d", i)
		}
	}
	return nil
}

func (e *Engine) logDone(res *CalcResult) {
	e.log.WithFields(logrus.Fields{
		"op":       res.Metadata.Operation,
		"method":   res.Metadata.Method,
		"points":   len(res.Values),
		"duration": res.Metadata.Duration,
	}).Debug("calculus complete")
}

// DerivativeSeries differentiates s and returns the derived series.
// Provenance flags carry over point by point.
func (e *Engine) DerivativeSeries(ctx context.Context, s *provenance.Series, p DerivativeParams) (*provenance.Series, *CalcResult, error) {
	res, err := e.Derivative(ctx, s.Values, s.Timestamps, p)
	if err != nil {
		return nil, nil, withSeries(err, s)
	}

	name := fmt.Sprintf("%s_d%d", s.Name, res.Order)
	derived, err := provenance.DeriveFrom([]*provenance.Series{s}, name, rateUnit(s.Unit, res.Order),
		OpDerivative, res.Metadata.Parameters, res.Timestamps, res.Values, s.Info)
	if err != nil {
		return nil, nil, err
	}
	return derived, res, nil
}

// CumulativeSeries integrates s cumulatively and returns the derived series
func (e *Engine) CumulativeSeries(ctx context.Context, s *provenance.Series) (*provenance.Series, *CalcResult, error) {
	res, err := e.Integral(ctx, s.Values, s.Timestamps, Cumulative)
	if err != nil {
		return nil, nil, withSeries(err, s)
	}

	derived, err := provenance.DeriveFrom([]*provenance.Series{s}, s.Name+"_integral", areaUnit(s.Unit),
		OpIntegral, res.Metadata.Parameters, res.Timestamps, res.Values, s.Info)
	if err != nil {
		return nil, nil, err
	}
	return derived, res, nil
}

// AreaBetweenSeries integrates upper - lower. Both series must share
// timestamps; synchronize them first otherwise.
func (e *Engine) AreaBetweenSeries(ctx context.Context, upper, lower *provenance.Series) (*provenance.Series, *CalcResult, error) {
	if !sameTimestamps(upper.Timestamps, lower.Timestamps) {
		err := types.Precondition(OpAreaBetween, "series %s and %s do not share timestamps", upper.ID, lower.ID)
		err.Hint = "synchronize the series onto a common time base first"
		return nil, nil, err
	}

	res, err := e.AreaBetween(ctx, upper.Values, lower.Values, upper.Timestamps)
	if err != nil {
		return nil, nil, err
	}

	info := mergeInfo(upper.Info, lower.Info, upper.Len())
	name := upper.Name + "_minus_" + lower.Name
	derived, err := provenance.DeriveFrom([]*provenance.Series{upper, lower}, name, areaUnit(upper.Unit),
		OpAreaBetween, res.Metadata.Parameters, res.Timestamps, res.Values, info)
	if err != nil {
		return nil, nil, err
	}
	return derived, res, nil
}

func sameTimestamps(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// mergeInfo marks a point interpolated when either input was
func mergeInfo(a, b provenance.InterpolationInfo, n int) provenance.InterpolationInfo {
	out := provenance.NewInfo(n)
	for i := 0; i < n; i++ {
		switch {
		case a.Len() == n && a.Interpolated[i]:
			out.Mark(i, a.Methods[i])
		case b.Len() == n && b.Interpolated[i]:
			out.Mark(i, b.Methods[i])
		}
	}
	return out
}

func rateUnit(unit string, order int) string {
	if unit == "" {
		return ""
	}
	if order == 1 {
		return unit + "/s"
	}
	return fmt.Sprintf("%s/s^%d", unit, order)
}

func areaUnit(unit string) string {
	if unit == "" {
		return ""
	}
	return unit + "*s"
}

func withSeries(err error, s *provenance.Series) error {
	var te *types.Error
	if errors.As(err, &te) {
		return te.WithSeries(string(s.ID))
	}
	return err
}
