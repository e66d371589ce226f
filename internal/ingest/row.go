package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/basekick-labs/fmilog/pkg/models"
)

// ParseRow decodes one merged data row into an event. Empty fields are
// skipped, so the event only carries the variables observed on this row.
func (h *Header) ParseRow(row []string) (*models.Event, error) {
	if len(row) != len(h.column)+1 && !(len(row) == 1 && len(h.column) == 0) {
		return nil, fmt.Errorf("%w: expected %d, got %d in [%s]",
			ErrRowShape, len(h.column)+1, len(row), strings.Join(row, string(Delimiter)))
	}

	t, err := strconv.ParseFloat(row[0], 64)
	if err != nil {
		return nil, &FieldError{Variable: models.TimeField, Value: row[0], Err: err}
	}
	event := models.NewEvent(t)

	for i, name := range h.column {
		field := row[i+1]
		if field == "" {
			continue
		}
		value, err := decodeField(field, h.types[name])
		if err != nil {
			if errors.Is(err, ErrTypeInvariant) {
				return nil, fmt.Errorf("variable %q: %w", name, err)
			}
			return nil, &FieldError{Variable: name, Value: field, Err: err}
		}
		event.Set(name, value)
	}

	return event, nil
}

// decodeField coerces a populated field to its declared type
func decodeField(field string, typ models.SimulationDataType) (interface{}, error) {
	switch typ {
	case models.Real:
		return strconv.ParseFloat(field, 64)
	case models.Integer:
		return strconv.ParseInt(field, 10, 64)
	case models.Boolean:
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, err
		}
		return v != 0, nil
	case models.String:
		return Unescape(field)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTypeInvariant, typ)
	}
}
