package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingHeader is returned when the source ends before both header lines were read.
	ErrMissingHeader = errors.New("missing header lines")
	// ErrHeaderShape is returned for a header with mismatching field counts, no fields or a bad time column.
	ErrHeaderShape = errors.New("malformed header")
	// ErrQuoteFormat is returned when a field is not a well-formed quoted literal.
	ErrQuoteFormat = errors.New("malformed quoted literal")
	// ErrRowShape is returned when a data row does not have one field per header column.
	ErrRowShape = errors.New("wrong number of fields")
	// ErrFieldConversion is returned when a populated field cannot be coerced to its declared type.
	ErrFieldConversion = errors.New("field conversion failed")
	// ErrTypeInvariant signals a header type this parser cannot decode. It is a programming error.
	ErrTypeInvariant = errors.New("unsupported simulation data type")
)

// ParseError records the physical line an error occurred on
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("fmilog: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FieldError describes a populated field that failed to decode.
// It matches both ErrFieldConversion and the underlying cause.
type FieldError struct {
	Variable string
	Value    string
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: variable %q, value %q: %v", ErrFieldConversion, e.Variable, e.Value, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{ErrFieldConversion, e.Err}
}

// Kind returns a short label for the error class, used by metrics and the API.
// Returns "" for nil and "io" for errors outside the parser's taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, ErrTypeInvariant):
		return "type_invariant"
	case errors.Is(err, ErrFieldConversion):
		return "field_conversion"
	case errors.Is(err, ErrQuoteFormat):
		return "quote_format"
	case errors.Is(err, ErrHeaderShape):
		return "header_shape"
	case errors.Is(err, ErrRowShape):
		return "row_shape"
	default:
		return "io"
	}
}

// Line extracts the line number from a ParseError chain, or 0
func Line(err error) int {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
