package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/dashboard/pkg/types"
)

func TestSelectPrecedence(t *testing.T) {
	abs := types.Between("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z")
	rel := types.Last("24h")

	tests := []struct {
		name string
		spec types.WidgetQuerySpec
		want Shape
	}{
		{
			name: "field set latest only",
			spec: types.WidgetQuerySpec{FieldSet: []string{"T1", "T2"}, LatestOnly: true, Window: rel},
			want: LatestPerSelector,
		},
		{
			name: "latest only beats absolute window",
			spec: types.WidgetQuerySpec{FieldSet: []string{"T1"}, LatestOnly: true, Window: abs},
			want: LatestPerSelector,
		},
		{
			name: "field set absolute",
			spec: types.WidgetQuerySpec{FieldSet: []string{"T1"}, Window: abs},
			want: SetAbsolute,
		},
		{
			name: "field set relative",
			spec: types.WidgetQuerySpec{FieldSet: []string{"T1"}, Window: rel},
			want: SetBucketed,
		},
		{
			name: "single absolute",
			spec: types.WidgetQuerySpec{Field: "X", Window: abs},
			want: SingleAbsolute,
		},
		{
			name: "single relative",
			spec: types.WidgetQuerySpec{Field: "X", Window: rel},
			want: SingleRaw,
		},
		{
			name: "latest only with single field has no special shape",
			spec: types.WidgetQuerySpec{Field: "X", LatestOnly: true, Window: rel},
			want: SingleRaw,
		},
		{
			name: "field set wins over field",
			spec: types.WidgetQuerySpec{Field: "X", FieldSet: []string{"T1"}, Window: rel},
			want: SetBucketed,
		},
		{
			name: "absolute takes precedence over relative",
			spec: types.WidgetQuerySpec{Field: "X", Window: types.Window{Relative: "1h", Start: abs.Start, End: abs.End}},
			want: SingleAbsolute,
		},
		{
			name: "no window",
			spec: types.WidgetQuerySpec{Field: "X"},
			want: SingleRaw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.spec))
		})
	}
}

func TestBuildLatestPerSelector(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{
		Store:      "sensors",
		Series:     "temperature",
		FieldSet:   []string{"T1", "T2"},
		Window:     types.Last("1h"),
		LatestOnly: true,
	})

	want := `from(bucket: "sensors")
  |> range(start: -1h)
  |> filter(fn: (r) => r["_measurement"] == "temperature")
  |> filter(fn: (r) => r["_field"] == "T1" or r["_field"] == "T2")
  |> group(columns: ["_field"])
  |> last()
  |> group()
`
	assert.Equal(t, want, plan.Text())
	assert.Equal(t, LatestPerSelector, plan.Shape())
	assert.Equal(t, "sensors", plan.Store())
	assert.Equal(t, "temperature", plan.Series())
}

func TestBuildSetAbsolute(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{
		Store:    "sensors",
		Series:   "temperature",
		FieldSet: []string{"T1"},
		Window:   types.Between("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"),
	})

	assert.Contains(t, plan.Text(), "range(start: 2024-01-01T00:00:00Z, stop: 2024-01-02T00:00:00Z)")
	assert.Contains(t, plan.Text(), "limit(n: 100)")
	assert.NotContains(t, plan.Text(), "aggregateWindow")
}

func TestBuildSetBucketed(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{
		Store:       "sensors",
		Series:      "temperature",
		FieldSet:    []string{"T1", "T2", "T3"},
		Window:      types.Last("7d"),
		Aggregation: "max",
	})

	assert.Contains(t, plan.Text(), "range(start: -7d)")
	assert.Contains(t, plan.Text(), "aggregateWindow(every: 1m, fn: max, createEmpty: false)")
	assert.NotContains(t, plan.Text(), "limit(")
}

func TestBuildSetBucketedDefaultsToMean(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{Store: "b", Series: "m", FieldSet: []string{"T1"}, Window: types.Last("1h")})
	assert.Contains(t, plan.Text(), "fn: mean,")
}

// A single relative selector returns raw points even when an aggregation is
// configured.
func TestBuildSingleRawIgnoresAggregation(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{
		Store:       "sensors",
		Series:      "pressure",
		Field:       "X",
		Window:      types.Last("24h"),
		Aggregation: "sum",
	})

	want := `from(bucket: "sensors")
  |> range(start: -24h)
  |> filter(fn: (r) => r["_measurement"] == "pressure")
  |> filter(fn: (r) => r["_field"] == "X")
  |> limit(n: 100)
`
	assert.Equal(t, SingleRaw, plan.Shape())
	assert.Equal(t, want, plan.Text())
	assert.False(t, plan.Shape().Aggregated())
}

func TestBuildSingleAbsolute(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{
		Store:  "sensors",
		Series: "pressure",
		Field:  "X",
		Window: types.Between("2024-03-01T00:00:00Z", "2024-03-01T06:00:00Z"),
	})
	assert.Equal(t, SingleAbsolute, plan.Shape())
	assert.Contains(t, plan.Text(), "range(start: 2024-03-01T00:00:00Z, stop: 2024-03-01T06:00:00Z)")
	assert.Contains(t, plan.Text(), "limit(n: 100)")
}

func TestBuildEmptyWindowIsZeroDuration(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{Store: "b", Series: "m", Field: "f"})
	assert.Contains(t, plan.Text(), "range(start: -0s)")
}

func TestBuildZeroWindowRendersFluxDuration(t *testing.T) {
	spec := types.WidgetQuerySpec{Store: "b", Series: "m", Field: "f", Window: types.Last("0")}
	require.NoError(t, spec.Validate())
	text := Build(spec).Text()
	assert.Contains(t, text, "range(start: -0s)")
	assert.NotContains(t, text, "range(start: -0)\n")

	assert.Contains(t, Build(types.WidgetQuerySpec{Store: "b", Series: "m", Field: "f", Window: types.Last("24h")}).Text(),
		"range(start: -24h)")
}

func TestBuildEscapesStringLiterals(t *testing.T) {
	plan := Build(types.WidgetQuerySpec{
		Store:  `my"bucket`,
		Series: `back\slash`,
		Field:  "${inject}",
		Window: types.Last("1h"),
	})
	text := plan.Text()
	assert.Contains(t, text, `from(bucket: "my\"bucket")`)
	assert.Contains(t, text, `== "back\\slash")`)
	assert.Contains(t, text, `== "\${inject}")`)
}

func TestBuildIsDeterministic(t *testing.T) {
	spec := types.WidgetQuerySpec{Store: "b", Series: "m", FieldSet: []string{"a", "b"}, Window: types.Last("1h")}
	first := Build(spec)
	second := Build(spec)
	require.Equal(t, first.Text(), second.Text())
	assert.Equal(t, 1, strings.Count(first.Text(), "from("))
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "set-bucketed", SetBucketed.String())
	assert.Equal(t, "shape(42)", Shape(42).String())
	assert.True(t, LatestPerSelector.Aggregated())
}
