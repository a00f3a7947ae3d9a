// Package synchronize aligns several independently sampled series onto
// one common time base.
package synchronize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/interpolation"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/types"
)

// OpSynchronize identifies alignment in metadata, lineage and errors
const OpSynchronize = "align.synchronize"

// SyncResult holds every input aligned to Timestamps
type SyncResult struct {
	Timestamps     []float64                               `json:"timestamps"`
	Values         map[string][]float64                    `json:"values"`
	Info           map[string]provenance.InterpolationInfo `json:"info"`
	Quality        map[string]types.QualityMetrics         `json:"quality"`
	AlignmentError float64                                 `json:"alignment_error"`
	Confidence     float64                                 `json:"confidence"`
	Metadata       types.ResultMetadata                    `json:"metadata"`
}

// Meta returns the result metadata
func (r *SyncResult) Meta() types.ResultMetadata {
	return r.Metadata
}

// SizeBytes estimates the in-memory footprint
func (r *SyncResult) SizeBytes() int64 {
	size := int64(256 + len(r.Timestamps)*8)
	for name, v := range r.Values {
		size += int64(len(name) + len(v)*8)
	}
	for _, info := range r.Info {
		size += int64(info.Len()) * (1 + 16)
	}
	return size
}

// Engine aligns series with a registry of strategies. It is safe for
// concurrent use.
type Engine struct {
	cache         *cache.Cache
	log           logrus.FieldLogger
	interp        *interpolation.Engine
	defaultMethod Method
	maxGridPoints int

	mu         sync.RWMutex
	strategies map[Method]Strategy
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

// WithInterpolation sets the engine used by common_grid_interpolate
func WithInterpolation(ie *interpolation.Engine) Option {
	return func(e *Engine) { e.interp = ie }
}

// WithDefaultMethod sets the strategy used when Params.Method is empty
func WithDefaultMethod(m Method) Option {
	return func(e *Engine) { e.defaultMethod = m }
}

// WithMaxGridPoints bounds the common time base
func WithMaxGridPoints(n int) Option {
	return func(e *Engine) { e.maxGridPoints = n }
}

// NewEngine creates a synchronization engine with the built-in strategies
func NewEngine(opts ...Option) *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)

	e := &Engine{
		log:           l,
		defaultMethod: CommonGrid,
		maxGridPoints: 10_000_000,
		strategies:    make(map[Method]Strategy),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interp == nil {
		e.interp = interpolation.NewEngine(interpolation.WithCache(e.cache), interpolation.WithLogger(e.log))
	}
	e.log = e.log.WithField("component", "synchronize")

	e.strategies[CommonGrid] = commonGrid{interp: e.interp}
	e.strategies[KalmanAlign] = kalman{}
	return e
}

// RegisterStrategy adds an alignment strategy. Names are unique.
func (e *Engine) RegisterStrategy(s Strategy) error {
	name := s.Name()
	if name == "" {
		return types.Precondition(OpSynchronize, "strategy has no name")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.strategies[name]; exists {
		return types.Precondition(OpSynchronize, "strategy %q already registered", name)
	}
	e.strategies[name] = s
	return nil
}

// Methods lists the registered strategies
func (e *Engine) Methods() []Method {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Method, 0, len(e.strategies))
	for m := range e.strategies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) strategy(m Method) (Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.strategies[m]
	if !ok {
		return nil, types.Unavailable(OpSynchronize, string(m), "no such alignment strategy",
			"register it with Engine.RegisterStrategy")
	}
	return s, nil
}

// Synchronize aligns every series in values, sampled at the matching
// entry of times, onto one common time base.
func (e *Engine) Synchronize(ctx context.Context, values, times map[string][]float64, p Params) (*SyncResult, error) {
	if p.Method == "" {
		p.Method = e.defaultMethod
	}
	if err := p.validate(OpSynchronize); err != nil {
		return nil, err
	}
	strat, err := e.strategy(p.Method)
	if err != nil {
		return nil, err
	}

	in, err := newInput(values, times, p)
	if err != nil {
		return nil, err
	}

	kb := e.interp.ScopeKey(cache.NewKey(OpSynchronize).Params(p)).Int("sync_max_grid_points", e.maxGridPoints)
	for _, name := range in.Names {
		kb.Floats(name+"/t", in.Times[name]).Floats(name+"/v", in.Values[name])
	}

	return cache.GetOrCompute(ctx, e.cache, kb.Key(), func() (*SyncResult, error) {
		start := time.Now()

		grid, err := e.grid(strat, in)
		if err != nil {
			return nil, err
		}
		in.Grid = grid

		al, err := strat.Align(ctx, in)
		if err != nil {
			return nil, err
		}
		if err := checkAlignment(in, al, p.Method); err != nil {
			return nil, err
		}

		res := &SyncResult{
			Timestamps:     grid,
			Values:         al.Values,
			Info:           al.Info,
			Quality:        make(map[string]types.QualityMetrics, len(in.Names)),
			AlignmentError: al.AlignmentError,
			Confidence:     al.Confidence,
			Metadata:       types.NewMetadata(OpSynchronize, string(p.Method), p, start),
		}
		for _, name := range in.Names {
			res.Quality[name] = types.CountQuality(al.Values[name], al.Info[name].Interpolated)
		}

		e.log.WithFields(logrus.Fields{
			"op":         OpSynchronize,
			"method":     p.Method,
			"series":     len(in.Names),
			"points":     len(grid),
			"confidence": res.Confidence,
			"duration":   res.Metadata.Duration,
		}).Debug("synchronization complete")
		return res, nil
	})
}

// SynchronizeSeries aligns series and returns one derived series per input,
// in input order. The result's maps are keyed by series ID.
func (e *Engine) SynchronizeSeries(ctx context.Context, series []*provenance.Series, p Params) ([]*provenance.Series, *SyncResult, error) {
	values := make(map[string][]float64, len(series))
	times := make(map[string][]float64, len(series))
	for _, s := range series {
		id := string(s.ID)
		if _, dup := values[id]; dup {
			return nil, nil, types.Precondition(OpSynchronize, "series %s given twice", id)
		}
		values[id] = s.Values
		times[id] = s.Timestamps
	}

	res, err := e.Synchronize(ctx, values, times, p)
	if err != nil {
		return nil, nil, err
	}

	out := make([]*provenance.Series, len(series))
	for i, s := range series {
		id := string(s.ID)
		info := carryInfo(s, res.Timestamps, res.Info[id])
		derived, err := s.Derive(OpSynchronize, res.Metadata.Parameters, res.Timestamps, res.Values[id], info)
		if err != nil {
			return nil, nil, err
		}
		out[i] = derived
	}
	return out, res, nil
}

// carryInfo keeps the earlier tag of grid points that reproduce a sample
// s had already filled
func carryInfo(s *provenance.Series, grid []float64, info provenance.InterpolationInfo) provenance.InterpolationInfo {
	out := info.Clone()
	if s.Info.Len() != s.Len() {
		return out
	}
	for g, x := range grid {
		if out.Interpolated[g] {
			continue
		}
		i := sort.SearchFloat64s(s.Timestamps, x)
		if i < s.Len() && s.Timestamps[i] == x && s.Info.Interpolated[i] {
			out.Mark(g, s.Info.Methods[i])
		}
	}
	return out
}

func newInput(values, times map[string][]float64, p Params) (*Input, error) {
	if len(values) == 0 {
		return nil, types.Precondition(OpSynchronize, "no series to synchronize")
	}
	if len(values) != len(times) {
		return nil, types.Precondition(OpSynchronize, "%d value arrays but %d timestamp arrays", len(values), len(times))
	}

	in := &Input{
		Names:  make([]string, 0, len(values)),
		Times:  times,
		Values: values,
		Params: p,
	}
	for name := range values {
		in.Names = append(in.Names, name)
	}
	sort.Strings(in.Names)

	for _, name := range in.Names {
		t, ok := times[name]
		if !ok {
			return nil, types.Precondition(OpSynchronize, "series %q has no timestamps", name)
		}
		if err := types.CheckSeries(OpSynchronize, values[name], t); err != nil {
			return nil, tagSeries(err, name)
		}
	}
	return in, nil
}

// grid builds the common time base: a regular grid when a frequency is
// given, else the strategy's own default, else the sparsest input density.
func (e *Engine) grid(strat Strategy, in *Input) ([]float64, error) {
	w, ok := span(in, in.Params.Window)
	if !ok {
		return nil, types.Precondition(OpSynchronize, "time window does not overlap any series")
	}

	step := in.Params.step()
	if step == 0 {
		if gb, ok := strat.(GridBuilder); ok {
			grid := gb.DefaultGrid(in, w)
			if len(grid) == 0 {
				return nil, types.Precondition(OpSynchronize, "no samples fall inside the time window")
			}
			if e.maxGridPoints > 0 && len(grid) > e.maxGridPoints {
				return nil, e.gridLimit(in.Params.Method, len(grid))
			}
			return grid, nil
		}
		step = sparsestStep(in)
	}
	if step == 0 {
		// every series holds a single sample
		grid := mergedTimeline(in, w)
		if len(grid) == 0 {
			return nil, types.Precondition(OpSynchronize, "no samples fall inside the time window")
		}
		return grid, nil
	}

	count, err := types.GridCount(OpSynchronize, string(in.Params.Method), w.Duration(), step, e.maxGridPoints)
	if err != nil {
		var te *types.Error
		if errors.As(err, &te) {
			te.Hint = gridHint
		}
		return nil, err
	}
	return regularGrid(w, count, step), nil
}

const gridHint = "lower the frequency or narrow the time window"

func (e *Engine) gridLimit(m Method, count int) error {
	err := types.ResourceLimit(OpSynchronize, string(m), e.maxGridPoints, count)
	err.Hint = gridHint
	return err
}

// checkAlignment verifies a strategy's output has the promised shape
func checkAlignment(in *Input, al *Alignment, m Method) error {
	if al == nil {
		return types.Degenerate(OpSynchronize, string(m), "strategy returned no alignment")
	}
	if math.IsNaN(al.Confidence) || al.Confidence < 0 || al.Confidence > 1 {
		return types.Degenerate(OpSynchronize, string(m), "confidence %v outside [0, 1]", al.Confidence)
	}
	if math.IsNaN(al.AlignmentError) {
		return types.Degenerate(OpSynchronize, string(m), "alignment error is NaN")
	}
	if al.Info == nil {
		al.Info = make(map[string]provenance.InterpolationInfo, len(in.Names))
	}
	for _, name := range in.Names {
		v, ok := al.Values[name]
		if !ok || len(v) != len(in.Grid) {
			return types.Degenerate(OpSynchronize, string(m), "series %q not aligned to the %d-point grid", name, len(in.Grid))
		}
		if al.Info[name].Len() == 0 {
			al.Info[name] = provenance.NewInfo(len(v))
		}
		if err := al.Info[name].Validate(len(v)); err != nil {
			return fmt.Errorf("strategy %s: %w", m, err)
		}
	}
	return nil
}

func tagSeries(err error, name string) error {
	var te *types.Error
	if errors.As(err, &te) {
		return te.WithSeries(name)
	}
	return err
}
