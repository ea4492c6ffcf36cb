package fluxcsv

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/vjranagit/dashboard/pkg/types"
)

var (
	groupAnnotation    = []string{"#group", "false", "false", "false", "false", "true"}
	datatypeAnnotation = []string{"#datatype", "string", "long", "dateTime:RFC3339", "double", "string"}
	defaultAnnotation  = []string{"#default", "_result", "", "", "", ""}
	header             = []string{"", "result", "table", TimeColumn, ValueColumn, SelectorColumn}
)

// Write renders records as one annotated CSV table, the way the store does.
// Records are grouped under a single table id; selectors are written as-is.
func Write(w io.Writer, records []types.Record) error {
	cw := csv.NewWriter(w)
	for _, row := range [][]string{groupAnnotation, datatypeAnnotation, defaultAnnotation, header} {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	for _, r := range records {
		row := []string{"", "", "0", r.Time, strconv.FormatFloat(r.Value, 'f', -1, 64), r.Selector}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
