package shape

import (
	"sort"
	"strings"
	"time"

	"github.com/vjranagit/dashboard/pkg/types"
)

// TimeGrid is a historical heatmap: one column per distinct timestamp and one
// row per selector.
type TimeGrid struct {
	Times     []string     `json:"times"`
	Selectors []string     `json:"selectors"`
	Cells     [][3]float64 `json:"cells"`
}

// ToTimeGrid lays records out on a time x selector grid. Times are ordered
// lexically (RFC 3339 strings in one zone sort chronologically), selectors
// in natural order so "T2" precedes "T10". Every record yields one cell.
func ToTimeGrid(records []types.Record) TimeGrid {
	timeSet := make(map[string]struct{})
	selSet := make(map[string]struct{})
	for _, r := range records {
		timeSet[r.Time] = struct{}{}
		selSet[r.Selector] = struct{}{}
	}

	g := TimeGrid{
		Times:     keys(timeSet),
		Selectors: keys(selSet),
		Cells:     make([][3]float64, 0, len(records)),
	}
	sort.Strings(g.Times)
	sort.Slice(g.Selectors, func(i, j int) bool {
		return NaturalLess(g.Selectors[i], g.Selectors[j])
	})

	xIdx := index(g.Times)
	yIdx := index(g.Selectors)
	for _, r := range records {
		g.Cells = append(g.Cells, [3]float64{float64(xIdx[r.Time]), float64(yIdx[r.Selector]), r.Value})
	}
	return g
}

// HourDayCell is the mean of all records falling in one hour of one weekday.
type HourDayCell struct {
	Hour    int          `json:"hour"`
	Weekday time.Weekday `json:"weekday"`
	Mean    float64      `json:"value"`
	Count   int          `json:"count"`
}

// ToHourDayGrid buckets records by hour-of-day and weekday in loc and averages
// each bucket. Cells are ordered by weekday, then hour.
func ToHourDayGrid(records []types.Record, loc *time.Location) []HourDayCell {
	if loc == nil {
		loc = time.UTC
	}
	type key struct {
		hour int
		day  time.Weekday
	}
	sums := make(map[key]*HourDayCell)
	for _, r := range records {
		t, ok := ParseTime(r.Time)
		if !ok {
			continue
		}
		t = t.In(loc)
		k := key{t.Hour(), t.Weekday()}
		c, ok := sums[k]
		if !ok {
			c = &HourDayCell{Hour: k.hour, Weekday: k.day}
			sums[k] = c
		}
		c.Mean += r.Value
		c.Count++
	}

	cells := make([]HourDayCell, 0, len(sums))
	for _, c := range sums {
		c.Mean /= float64(c.Count)
		cells = append(cells, *c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Weekday != cells[j].Weekday {
			return cells[i].Weekday < cells[j].Weekday
		}
		return cells[i].Hour < cells[j].Hour
	})
	return cells
}

// NaturalLess compares strings treating runs of digits as numbers.
func NaturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, restA := digitRun(a)
			nb, restB := digitRun(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			a, b = restA, restB
			continue
		}
		if ca != cb {
			return ca < cb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func digitRun(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func index(values []string) map[string]int {
	idx := make(map[string]int, len(values))
	for i, v := range values {
		idx[v] = i
	}
	return idx
}
