package ingest

import (
	"fmt"
	"unicode/utf8"

	"github.com/basekick-labs/fmilog/pkg/models"
)

// Columns is a batch of events in column-oriented form. Data holds one typed
// slice per variable ([]float64, []int64, []bool or []string) plus the time
// column. Validity marks observed entries; a variable with no gaps has no
// validity entry.
type Columns struct {
	Names    []string // time first, then variables in column order
	Data     map[string]interface{}
	Validity map[string][]bool
	Rows     int
}

// EventsToColumns converts a batch of events into typed columns. Absent
// variables become zero values flagged invalid. String values are sanitized
// to valid UTF-8.
func EventsToColumns(h *Header, events []*models.Event) (*Columns, error) {
	for _, name := range h.names {
		if name == models.TimeField {
			return nil, fmt.Errorf("variable %q collides with the time column", name)
		}
	}

	n := len(events)
	cols := &Columns{
		Names:    append([]string{models.TimeField}, h.names...),
		Data:     make(map[string]interface{}, h.Len()+1),
		Validity: make(map[string][]bool),
		Rows:     n,
	}

	times := make([]float64, n)
	for i, e := range events {
		times[i] = e.Time
	}
	cols.Data[models.TimeField] = times

	for _, name := range h.names {
		typ := h.types[name]
		valid := make([]bool, n)
		missing := false

		switch typ {
		case models.Real:
			col := make([]float64, n)
			for i, e := range events {
				if v, ok := e.Get(name); ok {
					f, ok := v.(float64)
					if !ok {
						return nil, columnTypeError(name, typ, v)
					}
					col[i], valid[i] = f, true
				} else {
					missing = true
				}
			}
			cols.Data[name] = col
		case models.Integer:
			col := make([]int64, n)
			for i, e := range events {
				if v, ok := e.Get(name); ok {
					iv, ok := v.(int64)
					if !ok {
						return nil, columnTypeError(name, typ, v)
					}
					col[i], valid[i] = iv, true
				} else {
					missing = true
				}
			}
			cols.Data[name] = col
		case models.Boolean:
			col := make([]bool, n)
			for i, e := range events {
				if v, ok := e.Get(name); ok {
					b, ok := v.(bool)
					if !ok {
						return nil, columnTypeError(name, typ, v)
					}
					col[i], valid[i] = b, true
				} else {
					missing = true
				}
			}
			cols.Data[name] = col
		case models.String:
			col := make([]string, n)
			for i, e := range events {
				if v, ok := e.Get(name); ok {
					s, ok := v.(string)
					if !ok {
						return nil, columnTypeError(name, typ, v)
					}
					col[i], valid[i] = SanitizeUTF8(s), true
				} else {
					missing = true
				}
			}
			cols.Data[name] = col
		default:
			return nil, fmt.Errorf("column %q: %w: %v", name, ErrTypeInvariant, typ)
		}

		if missing {
			cols.Validity[name] = valid
		}
	}

	return cols, nil
}

func columnTypeError(name string, typ models.SimulationDataType, v interface{}) error {
	return fmt.Errorf("column %q declared %v holds %T", name, typ, v)
}

// SanitizeUTF8 replaces invalid byte sequences with U+FFFD. Valid input is
// returned unchanged without allocating.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	buf := make([]byte, 0, len(s)+len(s)/8)
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			buf = utf8.AppendRune(buf, utf8.RuneError)
		} else {
			buf = append(buf, s[:size]...)
		}
		s = s[size:]
	}
	return string(buf)
}
