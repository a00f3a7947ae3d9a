// Package provenance holds the Series data model and per-point provenance
// threaded through every engine.
package provenance

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vjranagit/tscore/internal/version"
	"github.com/vjranagit/tscore/pkg/types"
)

// ID identifies a Series. Lineage refers to origins by ID, never by pointer.
type ID string

// NewID returns a fresh random identifier
func NewID() ID {
	return ID(uuid.NewString())
}

// Method tags how a point was produced.
type Method string

const (
	MethodOriginal        Method = "original"
	MethodLinear          Method = "linear"
	MethodSplineCubic     Method = "spline_cubic"
	MethodSmoothingSpline Method = "smoothing_spline"
	MethodResampleGrid    Method = "resample_grid"
	MethodMLS             Method = "mls"
	MethodGPR             Method = "gpr"
	MethodLombScargle     Method = "lomb_scargle_spectral"
	MethodKalman          Method = "kalman_align"
)

// InterpolationInfo is index-aligned with a Series' values.
type InterpolationInfo struct {
	Interpolated []bool
	Methods      []Method
}

// NewInfo returns provenance for n original points
func NewInfo(n int) InterpolationInfo {
	info := InterpolationInfo{
		Interpolated: make([]bool, n),
		Methods:      make([]Method, n),
	}
	for i := range info.Methods {
		info.Methods[i] = MethodOriginal
	}
	return info
}

// Len returns the number of tracked points
func (info InterpolationInfo) Len() int {
	return len(info.Interpolated)
}

// Mark records that point i was filled by method m
func (info InterpolationInfo) Mark(i int, m Method) {
	info.Interpolated[i] = true
	info.Methods[i] = m
}

// Count returns the number of interpolated points
func (info InterpolationInfo) Count() int {
	n := 0
	for _, v := range info.Interpolated {
		if v {
			n++
		}
	}
	return n
}

// Validate checks length agreement and that non-interpolated points are tagged Original
func (info InterpolationInfo) Validate(n int) error {
	if len(info.Interpolated) != n || len(info.Methods) != n {
		return types.Precondition("provenance", "interpolation info length %d/%d does not match series length %d",
			len(info.Interpolated), len(info.Methods), n)
	}
	for i, interp := range info.Interpolated {
		if !interp && info.Methods[i] != MethodOriginal {
			return types.Precondition("provenance", "point %d is not interpolated but tagged %q", i, info.Methods[i])
		}
		if interp && info.Methods[i] == MethodOriginal {
			return types.Precondition("provenance", "point %d is interpolated but tagged original", i)
		}
	}
	return nil
}

// Clone returns an independent copy
func (info InterpolationInfo) Clone() InterpolationInfo {
	out := InterpolationInfo{
		Interpolated: make([]bool, len(info.Interpolated)),
		Methods:      make([]Method, len(info.Methods)),
	}
	copy(out.Interpolated, info.Interpolated)
	copy(out.Methods, info.Methods)
	return out
}

// Select returns the provenance of the given indices, in order
func (info InterpolationInfo) Select(indices []int) InterpolationInfo {
	out := InterpolationInfo{
		Interpolated: make([]bool, len(indices)),
		Methods:      make([]Method, len(indices)),
	}
	for k, i := range indices {
		out.Interpolated[k] = info.Interpolated[i]
		out.Methods[k] = info.Methods[i]
	}
	return out
}

// Lineage is the immutable provenance record of a derived Series.
type Lineage struct {
	Origins    []ID
	Operation  string
	Parameters map[string]any
	CreatedAt  time.Time
	Version    string
}

// Series is a named, unit-tagged sequence with its own timestamps. A Series
// owns its buffers exclusively.
type Series struct {
	ID         ID
	Name       string
	Unit       string
	Timestamps []float64
	Values     []float64
	Info       InterpolationInfo
	Lineage    *Lineage
}

// NewSeries creates an original Series, copying t and values
func NewSeries(name, unit string, t, values []float64) (*Series, error) {
	if err := types.CheckSeries("series", values, t); err != nil {
		return nil, err
	}
	return &Series{
		ID:         NewID(),
		Name:       name,
		Unit:       unit,
		Timestamps: types.CloneFloats(t),
		Values:     types.CloneFloats(values),
		Info:       NewInfo(len(values)),
	}, nil
}

// Len returns the number of points
func (s *Series) Len() int {
	return len(s.Values)
}

// IsDerived reports whether the series carries lineage
func (s *Series) IsDerived() bool {
	return s.Lineage != nil
}

// Gaps returns the number of NaN values
func (s *Series) Gaps() int {
	n := 0
	for _, v := range s.Values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Derive creates a new Series produced from s by op. Buffers are copied;
// info may be empty, in which case every point is tagged Original.
func (s *Series) Derive(op string, params any, t, values []float64, info InterpolationInfo) (*Series, error) {
	return DeriveFrom([]*Series{s}, s.Name, s.Unit, op, params, t, values, info)
}

// DeriveFrom creates a new Series from several origins
func DeriveFrom(origins []*Series, name, unit, op string, params any, t, values []float64, info InterpolationInfo) (*Series, error) {
	if len(origins) == 0 {
		return nil, types.Precondition(op, "derived series needs at least one origin")
	}
	if err := types.CheckSeries(op, values, t); err != nil {
		return nil, err
	}
	if info.Len() == 0 {
		info = NewInfo(len(values))
	} else {
		info = info.Clone()
	}
	if err := info.Validate(len(values)); err != nil {
		return nil, err
	}

	ids := make([]ID, len(origins))
	for i, o := range origins {
		if o == nil || o.ID == "" {
			return nil, types.Precondition(op, "origin %d has no identifier", i)
		}
		ids[i] = o.ID
	}

	return &Series{
		ID:         NewID(),
		Name:       name,
		Unit:       unit,
		Timestamps: types.CloneFloats(t),
		Values:     types.CloneFloats(values),
		Info:       info,
		Lineage: &Lineage{
			Origins:    ids,
			Operation:  op,
			Parameters: types.ParamMap(params),
			CreatedAt:  time.Now(),
			Version:    version.Version,
		},
	}, nil
}

func (s *Series) String() string {
	if s.Lineage != nil {
		return fmt.Sprintf("%s(%s, n=%d, from %s)", s.Name, s.ID, s.Len(), s.Lineage.Operation)
	}
	return fmt.Sprintf("%s(%s, n=%d)", s.Name, s.ID, s.Len())
}
