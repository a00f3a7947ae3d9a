// Package downsample reduces a series to a target number of points while
// preserving its visual shape. Every method keeps the first and last
// points and never reorders or duplicates samples.
package downsample

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// OpDownsample identifies downsampling in metadata, lineage and errors
const OpDownsample = "downsample"

// Result holds the selected points and their positions in the input
type Result struct {
	types.DerivedResult
	Timestamps []float64 `json:"timestamps"`
	Indices    []int     `json:"indices"`
}

// SizeBytes estimates the in-memory footprint
func (r *Result) SizeBytes() int64 {
	return 256 + int64(len(r.Values)+len(r.Timestamps)+len(r.Indices))*8
}

// Engine downsamples series. It is safe for concurrent use.
type Engine struct {
	cache         *cache.Cache
	log           logrus.FieldLogger
	defaultMethod Method
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

// WithDefaultMethod sets the method used when Params.Method is empty
func WithDefaultMethod(m Method) Option {
	return func(e *Engine) { e.defaultMethod = m }
}

// NewEngine creates a downsampling engine
func NewEngine(opts ...Option) *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)

	e := &Engine{log: l, defaultMethod: LTTB}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "downsample")
	return e
}

// Methods lists the supported methods
func (e *Engine) Methods() []Method {
	return []Method{LTTB, MinMax, Adaptive, Uniform, PeakAware}
}

// Downsample selects min(p.Points, len(t)) points from the series
func (e *Engine) Downsample(ctx context.Context, values, t []float64, p Params) (*Result, error) {
	if p.Method == "" {
		p.Method = e.defaultMethod
	}
	if err := p.validate(OpDownsample); err != nil {
		return nil, err
	}
	if err := types.CheckSeries(OpDownsample, values, t); err != nil {
		return nil, err
	}
	if err := types.CheckNoGaps(OpDownsample, values); err != nil {
		return nil, err
	}
	if p.Points < 2 && len(values) > p.Points {
		return nil, types.Precondition(OpDownsample, "cannot keep both endpoints with %d points", p.Points)
	}

	key := cache.NewKey(OpDownsample).Floats("values", values).Floats("t", t).Params(p).Key()
	return cache.GetOrCompute(ctx, e.cache, key, func() (*Result, error) {
		start := time.Now()
		indices := selectIndices(values, t, p)

		res := &Result{
			Timestamps: make([]float64, len(indices)),
			Indices:    indices,
		}
		res.Values = make([]float64, len(indices))
		for k, i := range indices {
			res.Values[k] = values[i]
			res.Timestamps[k] = t[i]
		}
		q := types.CountQuality(res.Values, nil)
		res.Quality = &q
		res.Metadata = types.NewMetadata(OpDownsample, string(p.Method), p.Summary(), start)

		e.log.WithFields(logrus.Fields{
			"op":       OpDownsample,
			"method":   p.Method,
			"points":   len(indices),
			"input":    len(values),
			"duration": res.Metadata.Duration,
		}).Debug("downsampling complete")
		return res, nil
	})
}

// selectIndices returns sorted, distinct indices including both endpoints
func selectIndices(values, t []float64, p Params) []int {
	size := len(values)
	if p.Points >= size {
		all := make([]int, size)
		for i := range all {
			all[i] = i
		}
		return all
	}

	switch p.Method {
	case MinMax:
		return minmax(values, p.Points)
	case Adaptive:
		return adaptive(values, p.Points, p.Features)
	case Uniform:
		return uniform(size, p.Points)
	case PeakAware:
		return peakAware(values, p.Points, p.Prominence)
	default:
		return lttb(values, t, p.Points)
	}
}

// DownsampleSeries downsamples s and returns the derived series. Per-point
// provenance follows the selected points.
func (e *Engine) DownsampleSeries(ctx context.Context, s *provenance.Series, p Params) (*provenance.Series, *Result, error) {
	res, err := e.Downsample(ctx, s.Values, s.Timestamps, p)
	if err != nil {
		var te *types.Error
		if errors.As(err, &te) {
			return nil, nil, te.WithSeries(string(s.ID))
		}
		return nil, nil, err
	}

	var info provenance.InterpolationInfo
	if s.Info.Len() == s.Len() {
		info = s.Info.Select(res.Indices)
	}
	derived, err := s.Derive(OpDownsample, res.Metadata.Parameters, res.Timestamps, res.Values, info)
	if err != nil {
		return nil, nil, err
	}
	return derived, res, nil
}
