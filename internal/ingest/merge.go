// Package ingest parses FMITerminalBlock event logs.
//
// An event log is a ';' separated text file. The first two lines declare the
// variable names and their types, every following line is one event:
//
//	"time";"x";"label"
//	"fmiReal";"fmiInteger";"fmiString"
//	0.0;1;"a;b"
//	0.5;;""
//
// Every value of the header and every string is a quoted literal with doubled
// internal quotes. An unquoted empty field means the variable was not observed
// at that time, while "" is an observed empty string.
package ingest

import "strings"

// Delimiter separates the fields of a line
const Delimiter = ';'

// MergeFields rejoins fields which were split on a delimiter inside a quoted
// literal. The input is a row as split on every delimiter; the result shares
// no state with other rows.
//
// The pass toggles an "inside quote" flag whenever a raw field carries an odd
// number of '"' characters. While the flag is set, each field is appended to
// the previous output field. An unterminated literal at the end of the row is
// left as is and surfaces later as a quote error.
func MergeFields(row []string) []string {
	merged := make([]string, 0, len(row))
	inQuote := false

	for _, field := range row {
		if inQuote {
			last := len(merged) - 1
			merged[last] = merged[last] + string(Delimiter) + field
		} else {
			merged = append(merged, field)
		}

		if strings.Count(field, `"`)%2 == 1 {
			inQuote = !inQuote
		}
	}

	return merged
}
