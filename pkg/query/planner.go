// Package query translates a widget's declarative query spec into Flux.
//
// Planning is pure and total: a spec that passed validation always yields a
// plan, and a spec that did not still yields one (the store then answers with
// no rows). The five supported query shapes form a closed set; Select picks
// one by precedence and Render turns it into text.
package query

import (
	"fmt"
	"strings"

	"github.com/prometheus/common/model"

	"github.com/vjranagit/dashboard/pkg/types"
)

const (
	// MaxRows caps raw (non-aggregated) queries.
	MaxRows = 100
	// BucketEvery is the window size of bucketed multi-selector queries.
	BucketEvery = "1m"
)

// Shape identifies one of the supported query forms.
type Shape int

const (
	// LatestPerSelector reduces each selector of a field set to its last record.
	LatestPerSelector Shape = iota + 1
	// SetAbsolute reads raw records of a field set between start and end.
	SetAbsolute
	// SetBucketed aggregates a field set into 1-minute buckets over a relative window.
	SetBucketed
	// SingleAbsolute reads raw records of one selector between start and end.
	SingleAbsolute
	// SingleRaw reads raw records of one selector over a relative window.
	// Aggregation is not applied even when one is configured.
	SingleRaw
)

var shapeNames = map[Shape]string{
	LatestPerSelector: "latest-per-selector",
	SetAbsolute:       "set-absolute",
	SetBucketed:       "set-bucketed",
	SingleAbsolute:    "single-absolute",
	SingleRaw:         "single-raw",
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// Aggregated reports whether the shape reduces records.
func (s Shape) Aggregated() bool {
	return s == LatestPerSelector || s == SetBucketed
}

// Plan is an immutable planned query plus the routing data the store client needs.
type Plan struct {
	shape  Shape
	text   string
	store  string
	series string
}

func (p Plan) Shape() Shape { return p.shape }
func (p Plan) Text() string { return p.text }
func (p Plan) Store() string { return p.store }
func (p Plan) Series() string { return p.series }
func (p Plan) String() string { return p.text }

// Select returns the query shape for spec. Precedence:
//
//	fieldSet + latestOnly      -> LatestPerSelector
//	fieldSet + absolute window -> SetAbsolute
//	fieldSet                   -> SetBucketed
//	field + absolute window    -> SingleAbsolute
//	field                      -> SingleRaw
//
// fieldSet wins over field when both are present.
func Select(spec types.WidgetQuerySpec) Shape {
	abs := spec.Window.IsAbsolute()
	switch {
	case spec.HasFieldSet() && spec.LatestOnly:
		return LatestPerSelector
	case spec.HasFieldSet() && abs:
		return SetAbsolute
	case spec.HasFieldSet():
		return SetBucketed
	case abs:
		return SingleAbsolute
	default:
		return SingleRaw
	}
}

// Build plans spec. It never fails.
func Build(spec types.WidgetQuerySpec) Plan {
	shape := Select(spec)
	return Plan{
		shape:  shape,
		text:   Render(shape, spec),
		store:  spec.Store,
		series: spec.Series,
	}
}

// Render writes the Flux text for shape.
func Render(shape Shape, spec types.WidgetQuerySpec) string {
	var b builder
	b.pipe(fmt.Sprintf("from(bucket: %s)", fluxString(spec.Store)))
	b.stage(rangeClause(spec.Window))
	b.stage(fmt.Sprintf(`filter(fn: (r) => r["_measurement"] == %s)`, fluxString(spec.Series)))

	switch shape {
	case LatestPerSelector:
		b.stage(selectorFilter(spec.FieldSet))
		b.stage(`group(columns: ["_field"])`)
		b.stage("last()")
		b.stage("group()")
	case SetAbsolute:
		b.stage(selectorFilter(spec.FieldSet))
		b.stage(fmt.Sprintf("limit(n: %d)", MaxRows))
	case SetBucketed:
		b.stage(selectorFilter(spec.FieldSet))
		b.stage(fmt.Sprintf("aggregateWindow(every: %s, fn: %s, createEmpty: false)", BucketEvery, spec.Reducer()))
	case SingleAbsolute, SingleRaw:
		b.stage(selectorFilter([]string{spec.Field}))
		b.stage(fmt.Sprintf("limit(n: %d)", MaxRows))
	}
	return b.String()
}

func rangeClause(w types.Window) string {
	if w.IsAbsolute() {
		return fmt.Sprintf("range(start: %s, stop: %s)", w.Start, w.End)
	}
	d := strings.TrimSpace(w.Relative)
	// "0" is a valid duration here but not a Flux duration literal.
	if parsed, err := model.ParseDuration(d); d == "" || (err == nil && parsed == 0) {
		d = "0s"
	}
	return fmt.Sprintf("range(start: -%s)", d)
}

func selectorFilter(selectors []string) string {
	terms := make([]string, len(selectors))
	for i, s := range selectors {
		terms[i] = fmt.Sprintf(`r["_field"] == %s`, fluxString(s))
	}
	return fmt.Sprintf("filter(fn: (r) => %s)", strings.Join(terms, " or "))
}

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)
	return `"` + r.Replace(s) + `"`
}

type builder struct {
	strings.Builder
}

func (b *builder) pipe(s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

func (b *builder) stage(s string) {
	b.WriteString("  |> ")
	b.WriteString(s)
	b.WriteByte('\n')
}
