package types

import (
	"encoding/json"
	"maps"
	"math"
	"time"

	"github.com/vjranagit/tscore/internal/version"
)

// ResultMetadata describes the operation that produced a result
type ResultMetadata struct {
	Operation  string         `json:"operation"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters"`
	Duration   time.Duration  `json:"duration"`
	Version    string         `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DurationMillis returns the wall-clock duration in milliseconds
func (m ResultMetadata) DurationMillis() float64 {
	return float64(m.Duration) / float64(time.Millisecond)
}

// NewMetadata builds metadata for an operation that started at start
func NewMetadata(op, method string, params any, start time.Time) ResultMetadata {
	return ResultMetadata{
		Operation:  op,
		Method:     method,
		Parameters: ParamMap(params),
		Duration:   time.Since(start),
		Version:    version.Version,
		CreatedAt:  start,
	}
}

// ParamMap flattens a parameter struct into a parameter dictionary. The
// result never aliases params.
func ParamMap(params any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	if m, ok := params.(map[string]any); ok {
		out := make(map[string]any, len(m))
		maps.Copy(out, m)
		return out
	}

	data, err := json.Marshal(params)
	if err != nil {
		return map[string]any{}
	}

	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// QualityMetrics counts point categories in a result
type QualityMetrics struct {
	Valid        int `json:"valid"`
	Interpolated int `json:"interpolated"`
	NaN          int `json:"nan"`
}

// Total returns the number of points the metrics describe
func (q QualityMetrics) Total() int {
	return q.Valid + q.NaN
}

// CountQuality tallies finite and NaN values; interpolated may be nil
func CountQuality(values []float64, interpolated []bool) QualityMetrics {
	var q QualityMetrics
	for i, v := range values {
		if math.IsNaN(v) {
			q.NaN++
			continue
		}
		q.Valid++
		if interpolated != nil && interpolated[i] {
			q.Interpolated++
		}
	}
	return q
}

// DerivedResult is the common shape of every operation's output.
// Values are logically immutable once returned.
type DerivedResult struct {
	Values   []float64       `json:"values"`
	Metadata ResultMetadata  `json:"metadata"`
	Quality  *QualityMetrics `json:"quality,omitempty"`
}

// Meta returns the result metadata
func (r *DerivedResult) Meta() ResultMetadata {
	return r.Metadata
}

// SizeBytes estimates the in-memory footprint of the result
func (r *DerivedResult) SizeBytes() int64 {
	return int64(len(r.Values))*8 + 256
}

// Result is implemented by every operation result so it can be cached
type Result interface {
	Meta() ResultMetadata
	SizeBytes() int64
}

// TimeWindow is a [Start, End] interval in seconds
type TimeWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start
func (w TimeWindow) Duration() float64 {
	return w.End - w.Start
}

// Contains reports whether t lies inside the window
func (w TimeWindow) Contains(t float64) bool {
	return t >= w.Start && t <= w.End
}

// Validate rejects inverted or non-finite windows
func (w TimeWindow) Validate(op string) error {
	if math.IsNaN(w.Start) || math.IsNaN(w.End) || math.IsInf(w.Start, 0) || math.IsInf(w.End, 0) {
		return Precondition(op, "time window bounds must be finite, got [%v, %v]", w.Start, w.End)
	}
	if w.Start > w.End {
		return Precondition(op, "time window start %v is after end %v", w.Start, w.End)
	}
	return nil
}
