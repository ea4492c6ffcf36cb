package dashboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/query"
	"github.com/vjranagit/dashboard/pkg/shape"
	"github.com/vjranagit/dashboard/pkg/types"
)

const plantJSONC = `{
  // Plant floor
  "tabs": [
    {
      "id": "plant",
      "label": "Plant",
      "widgets": [
        {"id": "t1", "type": "line", "label": "Line 1", "unit": "°C",
         "store": "sensors", "series": "temperature", "field": "T1"},
        {"id": "p1", "type": "gauge", "store": "sensors", "series": "pressure",
         "field": "P1", "min": 0, "max": 10, "refresh": "30s"},
        {"id": "oven", "type": "heatmap", "store": "sensors", "series": "temperature",
         "layout": [["T1", "T2"], ["T3"]]},
        {"id": "row", "type": "container", "charts": [
          {"id": "row-a", "type": "line", "store": "sensors", "series": "humidity", "field": "H1"},
        ]},
      ],
    },
    {
      "id": "history",
      "label": "History",
      "widgets": [
        {"id": "hist", "type": "historical", "charts": [
          {"id": "hist-t", "type": "heatmap-historical", "store": "sensors",
           "series": "temperature", "fieldSet": ["T1", "T2", "T10"]},
        ]},
      ],
    },
  ],
}`

func parsePlant(t *testing.T) *Config {
	t.Helper()
	cfg, err := Parse([]byte(plantJSONC))
	require.NoError(t, err)
	return cfg
}

func TestParseJSONC(t *testing.T) {
	cfg := parsePlant(t)
	require.Len(t, cfg.Tabs, 2)

	plant, ok := cfg.Tab("plant")
	require.True(t, ok)
	ids := make([]string, 0)
	for _, w := range plant.Leaves() {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"t1", "p1", "oven", "row-a"}, ids)

	_, ok = cfg.Tab("missing")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(plantJSONC), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Tabs, 2)

	_, err = Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	assert.Error(t, err)
}

func TestTypeDefaults(t *testing.T) {
	cfg := parsePlant(t)
	plant, _ := cfg.Tab("plant")
	leaves := plant.Leaves()

	line := leaves[0].QuerySpec()
	assert.Equal(t, "24h", line.Window.Relative)
	assert.False(t, line.LatestOnly)
	assert.Equal(t, 5*time.Second, leaves[0].RefreshInterval())

	assert.Equal(t, "1h", leaves[1].QuerySpec().Window.Relative)
	assert.Equal(t, 30*time.Second, leaves[1].RefreshInterval())

	heat := leaves[2].QuerySpec()
	assert.True(t, heat.LatestOnly)
	assert.Equal(t, []string{"T1", "T2", "T3"}, heat.FieldSet)
	assert.Equal(t, query.LatestPerSelector, query.Select(heat))
	assert.Equal(t, 10*time.Second, leaves[2].RefreshInterval())
}

func TestLatestOnlyOverride(t *testing.T) {
	off := false
	w := Widget{ID: "h", Type: TypeHeatmap, Store: "s", Series: "m",
		Layout: [][]string{{"A"}}, LatestOnly: &off}
	assert.Equal(t, query.SetBucketed, query.Select(w.QuerySpec()))
}

func TestHistoricalWindow(t *testing.T) {
	cfg := parsePlant(t)
	history, _ := cfg.Tab("history")
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)

	hist := history.Widgets[0].WithWindow(HistoricalWindow(now))
	child := hist.Charts[0]
	assert.Equal(t, "2024-01-01T12:00:00Z", child.Window.Start)
	assert.Equal(t, "2024-01-08T12:00:00Z", child.Window.End)
	assert.Zero(t, child.RefreshInterval())
	assert.Equal(t, query.SetAbsolute, query.Select(child.QuerySpec()))

	// The original widget is untouched.
	assert.False(t, history.Widgets[0].Charts[0].Window.IsAbsolute())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no tabs", `{"tabs": []}`},
		{"duplicate tab", `{"tabs": [{"id": "a", "widgets": []}, {"id": "a", "widgets": []}]}`},
		{"duplicate widget", `{"tabs": [{"id": "a", "widgets": [
			{"id": "w", "type": "line", "store": "s", "series": "m", "field": "f"},
			{"id": "w", "type": "line", "store": "s", "series": "m", "field": "f"}]}]}`},
		{"unknown type", `{"tabs": [{"id": "a", "widgets": [
			{"id": "w", "type": "pie", "store": "s", "series": "m", "field": "f"}]}]}`},
		{"missing store", `{"tabs": [{"id": "a", "widgets": [
			{"id": "w", "type": "line", "series": "m", "field": "f"}]}]}`},
		{"heatmap without layout", `{"tabs": [{"id": "a", "widgets": [
			{"id": "w", "type": "heatmap", "store": "s", "series": "m", "fieldSet": ["A"]}]}]}`},
		{"empty container", `{"tabs": [{"id": "a", "widgets": [{"id": "w", "type": "container"}]}]}`},
		{"bad refresh", `{"tabs": [{"id": "a", "widgets": [
			{"id": "w", "type": "line", "store": "s", "series": "m", "field": "f", "refresh": "soon"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, errs.ClassValidation, errs.ClassOf(err))
		})
	}
}

func TestRenderLine(t *testing.T) {
	w := Widget{ID: "t1", Type: TypeLine, Unit: "°C"}
	v := Render(w, []types.Record{
		{Time: "2024-01-01T10:01:00Z", Value: 20},
		{Time: "2024-01-01T10:00:00Z", Value: 10},
	})
	require.Len(t, v.Series, 2)
	assert.Equal(t, 10.0, v.Series[0].Value)
	assert.Equal(t, shape.Stats{Min: 10, Max: 20, Mean: 15, Count: 2}, *v.Stats)
	assert.False(t, v.Empty)

	assert.True(t, Render(w, nil).Empty)
}

func TestRenderGauge(t *testing.T) {
	hi := 10.0
	w := Widget{ID: "p1", Type: TypeGauge, Max: &hi}
	v := Render(w, []types.Record{{Time: "a", Value: 3}, {Time: "b", Value: 4}})
	require.NotNil(t, v.Value)
	assert.Equal(t, 4.0, *v.Value)
	assert.Equal(t, Scale{Min: 0, Max: 10}, *v.Scale)

	empty := Render(w, nil)
	assert.Nil(t, empty.Value)
	assert.True(t, empty.Empty)
}

func TestRenderHeatmap(t *testing.T) {
	w := Widget{ID: "oven", Type: TypeHeatmap, Layout: [][]string{{"T1", "T2"}, {"T3"}}}
	v := Render(w, []types.Record{
		{Selector: "T1", Value: 10},
		{Selector: "T2", Value: 20},
		{Selector: "T3", Value: 30},
	})
	assert.Equal(t, []shape.MatrixCell{
		{Column: 0, Row: 0, Value: 10, Selector: "T1"},
		{Column: 1, Row: 0, Value: 20, Selector: "T2"},
		{Column: 0, Row: 1, Value: 30, Selector: "T3"},
	}, v.Cells)
	assert.Equal(t, Scale{Min: 10, Max: 30}, *v.Scale)
}

func TestRenderHistoricalHeatmap(t *testing.T) {
	w := Widget{ID: "hist-t", Type: TypeHeatmapHistorical}
	v := Render(w, []types.Record{
		{Time: "2024-01-01T10:00:00Z", Selector: "T10", Value: 5},
		{Time: "2024-01-01T10:00:00Z", Selector: "T2", Value: 5},
	})
	require.NotNil(t, v.Grid)
	assert.Equal(t, []string{"T2", "T10"}, v.Grid.Selectors)
	assert.Equal(t, Scale{Min: 0, Max: 10}, *v.Scale)
}

func TestRenderWeeklyHeatmap(t *testing.T) {
	w := Widget{ID: "week", Type: TypeHeatmapWeekly}
	v := Render(w, []types.Record{
		{Time: "2024-01-01T10:15:00Z", Value: 1},
		{Time: "2024-01-01T10:45:00Z", Value: 3},
	})
	require.Len(t, v.Hours, 1)
	assert.Equal(t, 10, v.Hours[0].Hour)
	assert.Equal(t, time.Monday, v.Hours[0].Weekday)
	assert.Equal(t, 2.0, v.Hours[0].Mean)
}
