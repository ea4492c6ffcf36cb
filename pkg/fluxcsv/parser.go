// Package fluxcsv decodes the store's annotated CSV responses into records.
//
// The wire format is a sequence of tables. Each table may be preceded by
// annotation lines starting with '#' (#group, #datatype, #default) and has a
// header row naming its columns:
//
//	#datatype,string,long,dateTime:RFC3339,double,string
//	,result,table,_time,_value,_field
//	,,0,2024-01-01T10:00:00Z,25.5,T1
//
// Parsing is best effort. Rows that cannot be decoded are skipped and counted,
// never fatal.
package fluxcsv

import (
	"encoding/csv"
	"math"
	"strconv"
	"strings"

	"github.com/vjranagit/dashboard/pkg/types"
)

const (
	// Marker starts an annotation line.
	Marker = '#'

	TimeColumn     = "_time"
	ValueColumn    = "_value"
	SelectorColumn = "_field"
)

// Stats describes one parse for diagnostics.
type Stats struct {
	// Lines is the number of non-blank lines read.
	Lines int
	// Skipped counts data rows that were dropped.
	Skipped int
	// Tables counts header rows that resolved a time and a value column.
	Tables int
	// HeaderFound is false when no usable header was located; the result is
	// then always empty.
	HeaderFound bool
}

// columns holds resolved positions of a header row. selector is -1 when the
// table has no selector column.
type columns struct {
	time, value, selector int
}

// width is the shortest row that carries every required column.
func (c columns) width() int {
	return max(c.time, c.value) + 1
}

// Parse decodes raw into records in source order. It never fails: malformed
// input yields an empty slice and a Stats explaining why.
func Parse(raw string) ([]types.Record, Stats) {
	var st Stats
	lines := splitLines(raw)
	st.Lines = len(lines)

	start := locateHeader(lines)
	if start < 0 {
		return []types.Record{}, st
	}
	cols, ok := resolve(splitFields(lines[start]))
	if !ok {
		return []types.Record{}, st
	}
	st.HeaderFound = true
	st.Tables = 1

	records := make([]types.Record, 0, len(lines)-start-1)
	for _, line := range lines[start+1:] {
		if line[0] == Marker {
			continue
		}
		fields := splitFields(line)

		// Later tables repeat their header; a header with a different layout
		// replaces the current column positions.
		if isHeader(fields) {
			if next, ok := resolve(fields); ok {
				cols = next
				st.Tables++
				continue
			}
		}

		rec, ok := decodeRow(fields, cols)
		if !ok {
			st.Skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, st
}

func decodeRow(fields []string, cols columns) (types.Record, bool) {
	if len(fields) < cols.width() {
		return types.Record{}, false
	}
	tm := strings.TrimSpace(fields[cols.time])
	if tm == "" {
		return types.Record{}, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[cols.value]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return types.Record{}, false
	}
	rec := types.Record{Time: tm, Value: v}
	if cols.selector >= 0 && cols.selector < len(fields) {
		rec.Selector = strings.TrimSpace(fields[cols.selector])
	}
	return rec, true
}

// locateHeader returns the index of the first non-annotation line naming both
// a time and a value column, falling back to the first non-annotation line.
func locateHeader(lines []string) int {
	fallback := -1
	for i, line := range lines {
		if line[0] == Marker {
			continue
		}
		if fallback < 0 {
			fallback = i
		}
		if isHeader(splitFields(line)) {
			return i
		}
	}
	return fallback
}

func isHeader(fields []string) bool {
	var t, v bool
	for _, f := range fields {
		switch strings.TrimSpace(f) {
		case TimeColumn:
			t = true
		case ValueColumn:
			v = true
		}
	}
	return t && v
}

func resolve(header []string) (columns, bool) {
	cols := columns{time: -1, value: -1, selector: -1}
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case TimeColumn:
			if cols.time < 0 {
				cols.time = i
			}
		case ValueColumn:
			if cols.value < 0 {
				cols.value = i
			}
		case SelectorColumn:
			if cols.selector < 0 {
				cols.selector = i
			}
		}
	}
	return cols, cols.time >= 0 && cols.value >= 0
}

func splitLines(raw string) []string {
	parts := strings.Split(raw, "\n")
	lines := parts[:0]
	for _, p := range parts {
		p = strings.TrimRight(p, "\r")
		if strings.TrimSpace(p) == "" {
			continue
		}
		lines = append(lines, p)
	}
	return lines
}

// splitFields splits one line honouring CSV quoting. Lines the CSV reader
// rejects (stray quotes) fall back to a plain comma split.
func splitFields(line string) []string {
	if !strings.ContainsRune(line, '"') {
		return strings.Split(line, ",")
	}
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return strings.Split(line, ",")
	}
	return fields
}
