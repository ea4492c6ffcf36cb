// Package shape converts parsed records into the structures each chart
// family consumes. Every function is pure and total: empty input yields the
// shape's "no data" form.
package shape

import (
	"sort"
	"time"

	"github.com/vjranagit/dashboard/pkg/types"
)

// Point is one time-series sample.
type Point struct {
	Instant time.Time `json:"time"`
	Value   float64   `json:"value"`
}

// MatrixCell is one heatmap cell positioned by a caller-supplied layout.
type MatrixCell struct {
	Column   int     `json:"column"`
	Row      int     `json:"row"`
	Value    float64 `json:"value"`
	Selector string  `json:"selector"`
}

// ParseTime parses a record timestamp.
func ParseTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ToSeries pairs each record's instant with its value and orders them
// ascending. Records sharing an instant are all kept, in arrival order.
// Records whose time does not parse are dropped.
func ToSeries(records []types.Record) []Point {
	points := make([]Point, 0, len(records))
	for _, r := range records {
		t, ok := ParseTime(r.Time)
		if !ok {
			continue
		}
		points = append(points, Point{Instant: t, Value: r.Value})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Instant.Before(points[j].Instant)
	})
	return points
}

// ToScalar returns the value of the last record in input order. The order
// is the store's: a latest-per-selector query already reduced to last().
func ToScalar(records []types.Record) (float64, bool) {
	if len(records) == 0 {
		return 0, false
	}
	return records[len(records)-1].Value, true
}

// Latest builds a selector -> value lookup. Later records win.
func Latest(records []types.Record) map[string]float64 {
	values := make(map[string]float64, len(records))
	for _, r := range records {
		values[r.Selector] = r.Value
	}
	return values
}

// ToMatrix places each selector of layout on a grid. Rows shorter than the
// widest row are centered using floor((maxCols - len(row)) / 2). Selectors
// without data produce no cell.
func ToMatrix(records []types.Record, layout [][]string) []MatrixCell {
	values := Latest(records)
	maxCols := Width(layout)

	cells := make([]MatrixCell, 0, len(values))
	for rowIdx, row := range layout {
		offset := (maxCols - len(row)) / 2
		for colIdx, selector := range row {
			v, ok := values[selector]
			if !ok {
				continue
			}
			cells = append(cells, MatrixCell{
				Column:   colIdx + offset,
				Row:      rowIdx,
				Value:    v,
				Selector: selector,
			})
		}
	}
	return cells
}

// Width returns the number of columns of layout.
func Width(layout [][]string) int {
	w := 0
	for _, row := range layout {
		w = max(w, len(row))
	}
	return w
}
