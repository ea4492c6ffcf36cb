package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/common/model"

	"github.com/vjranagit/dashboard/pkg/errs"
)

// DefaultAggregation is the reducer used when a spec names none.
const DefaultAggregation = "mean"

// Aggregations are the reducers the store accepts in bucketed queries.
var Aggregations = map[string]bool{
	"mean":   true,
	"median": true,
	"sum":    true,
	"min":    true,
	"max":    true,
	"count":  true,
	"first":  true,
	"last":   true,
	"spread": true,
	"stddev": true,
}

// Window is the time range a query covers: either a relative duration
// ("24h", "7d") or an absolute [Start, End) pair of RFC 3339 timestamps.
// When both forms are set the absolute pair wins.
type Window struct {
	Relative string
	Start    string
	End      string
}

// Last returns a relative window.
func Last(d string) Window { return Window{Relative: d} }

// Between returns an absolute window.
func Between(start, end string) Window { return Window{Start: start, End: end} }

// IsAbsolute reports whether the absolute form is active.
func (w Window) IsAbsolute() bool {
	return w.Start != "" || w.End != ""
}

// MarshalJSON writes the active form: a string or {"start","end"}.
func (w Window) MarshalJSON() ([]byte, error) {
	if w.IsAbsolute() {
		return json.Marshal(struct {
			Start string `json:"start"`
			End   string `json:"end"`
		}{w.Start, w.End})
	}
	return json.Marshal(w.Relative)
}

// UnmarshalJSON accepts either a duration string or a {start, end} object.
func (w *Window) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*w = Window{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = Window{Relative: s}
		return nil
	}
	var abs struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &abs); err != nil {
		return fmt.Errorf("window must be a duration or {start, end}: %w", err)
	}
	*w = Window{Start: abs.Start, End: abs.End}
	return nil
}

// WidgetQuerySpec is the declarative description of what one widget reads.
type WidgetQuerySpec struct {
	Store       string     `json:"store"`
	Series      string     `json:"series"`
	Field       string     `json:"field,omitempty"`
	FieldSet    []string   `json:"fieldSet,omitempty"`
	Window      Window     `json:"window"`
	Aggregation string     `json:"aggregation,omitempty"`
	LatestOnly  bool       `json:"latestOnly,omitempty"`
	Layout      [][]string `json:"layout,omitempty"`
}

// HasFieldSet reports whether the multi-selector form is in effect.
func (s WidgetQuerySpec) HasFieldSet() bool {
	return len(s.FieldSet) > 0
}

// Reducer returns the aggregation, defaulting to mean.
func (s WidgetQuerySpec) Reducer() string {
	if s.Aggregation == "" {
		return DefaultAggregation
	}
	return s.Aggregation
}

// Validate checks the caller contract. It runs before planning so a bad
// config never reaches the store.
func (s WidgetQuerySpec) Validate() error {
	if strings.TrimSpace(s.Store) == "" || strings.TrimSpace(s.Series) == "" {
		return errs.Validation("missing required parameters: store, series")
	}
	if s.Field == "" && len(s.FieldSet) == 0 {
		return errs.Validation("either field or fieldSet must be set")
	}
	seen := make(map[string]bool, len(s.FieldSet))
	for _, f := range s.FieldSet {
		if strings.TrimSpace(f) == "" {
			return errs.Validation("fieldSet contains an empty selector")
		}
		if seen[f] {
			return errs.Validation("fieldSet contains %q more than once", f)
		}
		seen[f] = true
	}
	if s.Aggregation != "" && !Aggregations[s.Aggregation] {
		return errs.Validation("unknown aggregation %q", s.Aggregation)
	}
	return s.Window.validate()
}

func (w Window) validate() error {
	if w.IsAbsolute() {
		if w.Start == "" || w.End == "" {
			return errs.Validation("absolute window needs both start and end")
		}
		start, err := time.Parse(time.RFC3339Nano, w.Start)
		if err != nil {
			return errs.Validation("window start %q is not an RFC 3339 timestamp", w.Start)
		}
		end, err := time.Parse(time.RFC3339Nano, w.End)
		if err != nil {
			return errs.Validation("window end %q is not an RFC 3339 timestamp", w.End)
		}
		if !start.Before(end) {
			return errs.Validation("window start must be before end")
		}
		return nil
	}
	if w.Relative == "" {
		return nil
	}
	if _, err := model.ParseDuration(w.Relative); err != nil {
		return errs.Validation("window %q is not a duration", w.Relative)
	}
	return nil
}

// Record is one decoded data point. Time stays in its wire form; shapers
// that need an instant parse it themselves.
type Record struct {
	Time     string  `json:"time"`
	Value    float64 `json:"value"`
	Selector string  `json:"field,omitempty"`
}

// Metadata echoes the request next to the data it produced.
type Metadata struct {
	Store       string   `json:"store"`
	Series      string   `json:"series"`
	Field       string   `json:"field,omitempty"`
	FieldSet    []string `json:"fieldSet,omitempty"`
	Window      Window   `json:"window"`
	Aggregation string   `json:"aggregation"`
	LatestOnly  bool     `json:"latestOnly"`
	Shape       string   `json:"shape"`
	DataPoints  int      `json:"dataPoints"`
	Skipped     int      `json:"skippedRows"`
}

// Response is the caller-facing envelope. An empty Data slice with
// Success=true means "no data", which is distinct from a failure.
type Response struct {
	Success  bool      `json:"success"`
	Data     []Record  `json:"data"`
	Error    string    `json:"error,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}
