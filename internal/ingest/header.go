package ingest

import (
	"errors"
	"fmt"
	"io"

	"github.com/basekick-labs/fmilog/pkg/models"
)

// DuplicatePolicy decides how a header that declares a name twice is handled
type DuplicatePolicy int

const (
	// DuplicateReject fails header parsing with ErrHeaderShape
	DuplicateReject DuplicatePolicy = iota
	// DuplicateLastWins keeps the first column position and the last declared type
	DuplicateLastWins
)

// ParseDuplicatePolicy maps the configuration value ("reject", "last-wins")
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "reject":
		return DuplicateReject, nil
	case "last-wins", "last_wins":
		return DuplicateLastWins, nil
	default:
		return 0, fmt.Errorf("unknown duplicate name policy %q (use reject or last-wins)", s)
	}
}

var (
	timeNameLiteral = Quote(models.TimeField)
	timeTypeLiteral = Quote("fmiReal")
)

// Header is the parsed two-line header: the variable names in column order
// and their declared types. It does not include the time column.
type Header struct {
	names []string
	types map[string]models.SimulationDataType
	// column maps each data column (1-based, after time) to its variable
	column []string
}

// NewHeader builds a header from names and types in column order. It is the
// programmatic counterpart of reading the two header lines.
func NewHeader(names []string, types []models.SimulationDataType, policy DuplicatePolicy) (*Header, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("%w: %d names but %d types", ErrHeaderShape, len(names), len(types))
	}

	h := &Header{
		names:  make([]string, 0, len(names)),
		types:  make(map[string]models.SimulationDataType, len(names)),
		column: make([]string, len(names)),
	}
	for i, name := range names {
		if _, seen := h.types[name]; seen {
			if policy == DuplicateReject {
				return nil, fmt.Errorf("%w: duplicate variable name %q in column %d", ErrHeaderShape, name, i+1)
			}
		} else {
			h.names = append(h.names, name)
		}
		h.types[name] = types[i]
		h.column[i] = name
	}
	return h, nil
}

// Names returns the variable names in column order
func (h *Header) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Types returns a copy of the name to type mapping
func (h *Header) Types() map[string]models.SimulationDataType {
	out := make(map[string]models.SimulationDataType, len(h.types))
	for k, v := range h.types {
		out[k] = v
	}
	return out
}

// Type returns the declared type of a variable
func (h *Header) Type(name string) (models.SimulationDataType, bool) {
	t, ok := h.types[name]
	return t, ok
}

// Len returns the number of distinct variables
func (h *Header) Len() int {
	return len(h.names)
}

// Columns returns the number of data columns after the time column
func (h *Header) Columns() int {
	return len(h.column)
}

// parseHeader reads and validates the two header lines from src
func parseHeader(src RowSource, policy DuplicatePolicy) (*Header, error) {
	rawNames, err := src.ReadRow()
	if err != nil {
		return nil, headerReadError(src, err)
	}
	nameLine := src.Line()
	rawTypes, err := src.ReadRow()
	if err != nil {
		return nil, headerReadError(src, err)
	}
	typeLine := src.Line()

	names := MergeFields(rawNames)
	tokens := MergeFields(rawTypes)

	if len(names) != len(tokens) {
		return nil, &ParseError{Line: typeLine, Err: fmt.Errorf(
			"%w: the first header line has %d fields but the second header line has %d",
			ErrHeaderShape, len(names), len(tokens))}
	}
	if len(names) == 0 {
		return nil, &ParseError{Line: nameLine, Err: fmt.Errorf("%w: empty header", ErrHeaderShape)}
	}
	if names[0] != timeNameLiteral || tokens[0] != timeTypeLiteral {
		return nil, &ParseError{Line: nameLine, Err: fmt.Errorf(
			"%w: the first column is not a valid time reference (variable is %q, type is %q)",
			ErrHeaderShape, names[0], tokens[0])}
	}

	// "time"; with nothing after the delimiter declares no model variables.
	// A quoted empty name paired with an empty type reads the same way.
	if len(names) == 2 && (names[1] == "" || (names[1] == `""` && (tokens[1] == "" || tokens[1] == `""`))) {
		names = names[:1]
		tokens = tokens[:1]
	}

	varNames, err := unescapeAll(names[1:])
	if err != nil {
		return nil, &ParseError{Line: nameLine, Err: err}
	}
	varTokens, err := unescapeAll(tokens[1:])
	if err != nil {
		return nil, &ParseError{Line: typeLine, Err: err}
	}

	types, err := models.InferTypes(varTokens)
	if err != nil {
		return nil, &ParseError{Line: typeLine, Err: fmt.Errorf("%w: %w", ErrHeaderShape, err)}
	}

	h, err := NewHeader(varNames, types, policy)
	if err != nil {
		return nil, &ParseError{Line: nameLine, Err: err}
	}
	return h, nil
}

func headerReadError(src RowSource, err error) error {
	if errors.Is(err, io.EOF) {
		return &ParseError{Line: src.Line(), Err: fmt.Errorf(
			"%w: the data source does not contain two header lines", ErrMissingHeader)}
	}
	return err
}
