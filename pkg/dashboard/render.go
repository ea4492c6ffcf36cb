package dashboard

import (
	"time"

	"github.com/vjranagit/dashboard/pkg/shape"
	"github.com/vjranagit/dashboard/pkg/types"
)

// Gauge scale used when a widget sets none.
const (
	DefaultGaugeMin = 0
	DefaultGaugeMax = 100
)

// Scale is a value range for a color map or a gauge dial.
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// View is the chart-ready form of one widget's records. Only the fields of
// the widget's type are set.
type View struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Unit  string `json:"unit,omitempty"`

	Series []shape.Point       `json:"series,omitempty"`
	Stats  *shape.Stats        `json:"stats,omitempty"`
	Value  *float64            `json:"value,omitempty"`
	Cells  []shape.MatrixCell  `json:"cells,omitempty"`
	Grid   *shape.TimeGrid     `json:"grid,omitempty"`
	Hours  []shape.HourDayCell `json:"hours,omitempty"`
	Scale  *Scale              `json:"scale,omitempty"`

	// Empty is set when there was nothing to draw.
	Empty bool `json:"empty"`
}

// Render shapes records for w. Group widgets render as an empty view; their
// charts are rendered individually.
func Render(w Widget, records []types.Record) View {
	v := View{ID: w.ID, Type: w.Type, Label: w.Label, Unit: w.Unit}

	switch w.Type {
	case TypeLine:
		v.Series = shape.ToSeries(records)
		st := shape.Summarize(records)
		v.Stats = &st
		v.Empty = len(v.Series) == 0

	case TypeGauge:
		v.Scale = &Scale{Min: DefaultGaugeMin, Max: DefaultGaugeMax}
		if w.Min != nil {
			v.Scale.Min = *w.Min
		}
		if w.Max != nil {
			v.Scale.Max = *w.Max
		}
		if val, ok := shape.ToScalar(records); ok {
			v.Value = &val
		} else {
			v.Empty = true
		}

	case TypeHeatmap:
		v.Cells = shape.ToMatrix(records, w.Layout)
		if lo, hi, ok := shape.VisualRange(shape.CellValues(v.Cells)); ok {
			v.Scale = &Scale{Min: lo, Max: hi}
		}
		v.Empty = len(v.Cells) == 0

	case TypeHeatmapHistorical:
		grid := shape.ToTimeGrid(records)
		v.Grid = &grid
		values := make([]float64, len(grid.Cells))
		for i, c := range grid.Cells {
			values[i] = c[2]
		}
		if lo, hi, ok := shape.VisualRange(values); ok {
			v.Scale = &Scale{Min: lo, Max: hi}
		}
		v.Empty = len(grid.Cells) == 0

	case TypeHeatmapWeekly:
		v.Hours = shape.ToHourDayGrid(records, time.UTC)
		values := make([]float64, len(v.Hours))
		for i, c := range v.Hours {
			values[i] = c.Mean
		}
		if lo, hi, ok := shape.VisualRange(values); ok {
			v.Scale = &Scale{Min: lo, Max: hi}
		}
		v.Empty = len(v.Hours) == 0

	default:
		v.Empty = true
	}
	return v
}
