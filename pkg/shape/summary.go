package shape

import (
	"math"

	"github.com/vjranagit/dashboard/pkg/types"
)

// flatPadding widens a visual range whose min equals its max.
const flatPadding = 5

// Stats summarises the values of a record set.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"avg"`
	Count int     `json:"count"`
}

// Summarize computes min, max, mean and count. All zero when empty.
func Summarize(records []types.Record) Stats {
	if len(records) == 0 {
		return Stats{}
	}
	st := Stats{Min: math.Inf(1), Max: math.Inf(-1), Count: len(records)}
	var sum float64
	for _, r := range records {
		st.Min = math.Min(st.Min, r.Value)
		st.Max = math.Max(st.Max, r.Value)
		sum += r.Value
	}
	st.Mean = sum / float64(len(records))
	return st
}

// VisualRange returns the color scale bounds for a heatmap. A flat range is
// widened so a single color still maps onto the scale. ok is false when
// values is empty.
func VisualRange(values []float64) (lo, hi float64, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo > 0 {
		return lo, hi, true
	}
	return lo - flatPadding, hi + flatPadding, true
}

// CellValues extracts the values of cells.
func CellValues(cells []MatrixCell) []float64 {
	vals := make([]float64, len(cells))
	for i, c := range cells {
		vals[i] = c.Value
	}
	return vals
}
