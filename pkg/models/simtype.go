package models

import (
	"errors"
	"fmt"
)

// SimulationDataType tags the declared type of a model variable
type SimulationDataType int

const (
	Real SimulationDataType = iota + 1
	Integer
	Boolean
	String
)

// ErrUnknownTypeToken is returned by InferTypes for a type token it does not know
var ErrUnknownTypeToken = errors.New("unknown simulation data type token")

var typeTokens = map[string]SimulationDataType{
	"fmiReal":    Real,
	"fmiInteger": Integer,
	"fmiBoolean": Boolean,
	"fmiString":  String,
}

// String returns the upper-case tag name (REAL, INTEGER, BOOLEAN, STRING)
func (t SimulationDataType) String() string {
	switch t {
	case Real:
		return "REAL"
	case Integer:
		return "INTEGER"
	case Boolean:
		return "BOOLEAN"
	case String:
		return "STRING"
	default:
		return fmt.Sprintf("SimulationDataType(%d)", int(t))
	}
}

// Token returns the header token which declares the type, e.g. "fmiReal"
func (t SimulationDataType) Token() string {
	for token, typ := range typeTokens {
		if typ == t {
			return token
		}
	}
	return ""
}

// Valid reports whether t is one of the four known tags
func (t SimulationDataType) Valid() bool {
	return t >= Real && t <= String
}

// MarshalText encodes the tag name so headers serialize readably
func (t SimulationDataType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid simulation data type %d", int(t))
	}
	return []byte(t.String()), nil
}

// ParseSimulationDataType maps a single header token to its type
func ParseSimulationDataType(token string) (SimulationDataType, error) {
	t, ok := typeTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTypeToken, token)
	}
	return t, nil
}

// InferTypes maps the type tokens of the second header line, in order,
// to one SimulationDataType per variable.
func InferTypes(tokens []string) ([]SimulationDataType, error) {
	types := make([]SimulationDataType, 0, len(tokens))
	for i, token := range tokens {
		t, err := ParseSimulationDataType(token)
		if err != nil {
			return nil, fmt.Errorf("variable %d: %w", i+1, err)
		}
		types = append(types, t)
	}
	return types, nil
}
