// Package dashboard loads a tenant's dashboard layout and turns widget
// definitions into query specs and chart-ready views.
//
// Dashboards are authored as JSONC (JSON with comments and trailing commas):
//
//	{
//	  "tabs": [{
//	    "id": "plant", "label": "Plant",
//	    "widgets": [
//	      {"id": "t1", "type": "line", "store": "sensors", "series": "temperature", "field": "T1"},
//	      {"id": "oven", "type": "heatmap", "store": "sensors", "series": "temperature",
//	       "layout": [["T1", "T2"], ["T3"]]},
//	    ],
//	  }],
//	}
package dashboard

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/model"
	"github.com/tidwall/jsonc"

	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/types"
)

// Widget types.
const (
	TypeLine              = "line"
	TypeGauge             = "gauge"
	TypeHeatmap           = "heatmap"
	TypeHeatmapHistorical = "heatmap-historical"
	TypeHeatmapWeekly     = "heatmap-weekly"
	TypeHistorical        = "historical"
	TypeContainer         = "container"
)

// HistoricalSpan is the default range a historical widget opens with.
const HistoricalSpan = 7 * 24 * time.Hour

type defaults struct {
	refresh    time.Duration
	window     string
	latestOnly bool
}

var typeDefaults = map[string]defaults{
	TypeLine:              {refresh: 5 * time.Second, window: "24h"},
	TypeGauge:             {refresh: 5 * time.Second, window: "1h"},
	TypeHeatmap:           {refresh: 10 * time.Second, window: "1h", latestOnly: true},
	TypeHeatmapHistorical: {refresh: 10 * time.Minute, window: "24h"},
	TypeHeatmapWeekly:     {refresh: 10 * time.Minute, window: "7d"},
}

// Config is one dashboard.
type Config struct {
	Tabs []Tab `json:"tabs"`
}

// Tab groups widgets under one navigation entry.
type Tab struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Widgets []Widget `json:"widgets"`
}

// Widget is one chart, or a container of charts.
type Widget struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Unit  string `json:"unit,omitempty"`

	Store       string       `json:"store,omitempty"`
	Series      string       `json:"series,omitempty"`
	Field       string       `json:"field,omitempty"`
	FieldSet    []string     `json:"fieldSet,omitempty"`
	Layout      [][]string   `json:"layout,omitempty"`
	Aggregation string       `json:"aggregation,omitempty"`
	Window      types.Window `json:"window"`
	LatestOnly  *bool        `json:"latestOnly,omitempty"`

	// Refresh overrides the type's polling interval ("30s", "5m"). "0s"
	// loads once.
	Refresh string `json:"refresh,omitempty"`

	// Gauge scale.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Charts are the children of container and historical widgets.
	Charts []Widget `json:"charts,omitempty"`
}

// IsGroup reports whether w only holds other charts.
func (w Widget) IsGroup() bool {
	return w.Type == TypeContainer || w.Type == TypeHistorical
}

// QuerySpec returns the query w issues, with type defaults applied.
// Heatmaps without a fieldSet query every selector in their layout.
func (w Widget) QuerySpec() types.WidgetQuerySpec {
	d := typeDefaults[w.Type]
	spec := types.WidgetQuerySpec{
		Store:       w.Store,
		Series:      w.Series,
		Field:       w.Field,
		FieldSet:    w.FieldSet,
		Window:      w.Window,
		Aggregation: w.Aggregation,
		LatestOnly:  d.latestOnly,
		Layout:      w.Layout,
	}
	if w.LatestOnly != nil {
		spec.LatestOnly = *w.LatestOnly
	}
	if !spec.Window.IsAbsolute() && spec.Window.Relative == "" {
		spec.Window.Relative = d.window
	}
	if len(spec.FieldSet) == 0 && len(w.Layout) > 0 {
		spec.FieldSet = flatten(w.Layout)
	}
	return spec
}

// RefreshInterval is how often w is polled. Zero means load once; widgets
// with an absolute window never refresh.
func (w Widget) RefreshInterval() time.Duration {
	if w.Window.IsAbsolute() {
		return 0
	}
	if w.Refresh != "" {
		if d, err := model.ParseDuration(w.Refresh); err == nil {
			return time.Duration(d)
		}
	}
	return typeDefaults[w.Type].refresh
}

// WithWindow returns a copy of w and its charts reading window.
func (w Widget) WithWindow(window types.Window) Widget {
	w.Window = window
	if len(w.Charts) > 0 {
		charts := make([]Widget, len(w.Charts))
		for i, c := range w.Charts {
			charts[i] = c.WithWindow(window)
		}
		w.Charts = charts
	}
	return w
}

// HistoricalWindow is the range a historical widget opens with: the
// HistoricalSpan ending at now.
func HistoricalWindow(now time.Time) types.Window {
	now = now.UTC()
	return types.Between(now.Add(-HistoricalSpan).Format(time.RFC3339), now.Format(time.RFC3339))
}

// Leaves returns the charts of tab that issue queries, containers expanded.
func (t Tab) Leaves() []Widget {
	var out []Widget
	var walk func([]Widget)
	walk = func(ws []Widget) {
		for _, w := range ws {
			if w.IsGroup() {
				walk(w.Charts)
				continue
			}
			out = append(out, w)
		}
	}
	walk(t.Widgets)
	return out
}

// Tab returns the tab with id.
func (c *Config) Tab(id string) (Tab, bool) {
	for _, t := range c.Tabs {
		if t.ID == id {
			return t, true
		}
	}
	return Tab{}, false
}

// Parse decodes a JSONC dashboard and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing dashboard: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a dashboard file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ids, types and every leaf widget's query.
func (c *Config) Validate() error {
	if len(c.Tabs) == 0 {
		return errs.Validation("dashboard has no tabs")
	}
	tabs := make(map[string]bool)
	widgets := make(map[string]bool)
	for _, t := range c.Tabs {
		if t.ID == "" {
			return errs.Validation("tab without id")
		}
		if tabs[t.ID] {
			return errs.Validation("duplicate tab id %q", t.ID)
		}
		tabs[t.ID] = true
		if err := validateWidgets(t.Widgets, widgets); err != nil {
			return fmt.Errorf("tab %q: %w", t.ID, err)
		}
	}
	return nil
}

func validateWidgets(ws []Widget, seen map[string]bool) error {
	for _, w := range ws {
		if w.ID == "" {
			return errs.Validation("widget without id")
		}
		if seen[w.ID] {
			return errs.Validation("duplicate widget id %q", w.ID)
		}
		seen[w.ID] = true

		if w.IsGroup() {
			if len(w.Charts) == 0 {
				return errs.Validation("widget %q of type %s has no charts", w.ID, w.Type)
			}
			if err := validateWidgets(w.Charts, seen); err != nil {
				return err
			}
			continue
		}
		if _, ok := typeDefaults[w.Type]; !ok {
			return errs.Validation("widget %q has unknown type %q", w.ID, w.Type)
		}
		if w.Refresh != "" {
			if _, err := model.ParseDuration(w.Refresh); err != nil {
				return errs.Validation("widget %q has invalid refresh %q", w.ID, w.Refresh)
			}
		}
		if w.Type == TypeHeatmap && len(w.Layout) == 0 {
			return errs.Validation("heatmap %q needs a layout", w.ID)
		}
		if err := w.QuerySpec().Validate(); err != nil {
			return fmt.Errorf("widget %q: %w", w.ID, err)
		}
	}
	return nil
}

func flatten(layout [][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range layout {
		for _, s := range row {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
