package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/basekick-labs/fmilog/pkg/models"
)

// JSONLinesWriter writes one JSON object per event. Keys follow the header
// column order with "time" first; unobserved variables are left out.
type JSONLinesWriter struct {
	w     *bufio.Writer
	names []string
	buf   []byte
}

// NewJSONLinesWriter creates a JSON Lines writer
func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{w: bufio.NewWriter(w)}
}

func (j *JSONLinesWriter) WriteHeader(h *ingest.Header) error {
	j.names = h.Names()
	return nil
}

func (j *JSONLinesWriter) WriteEvent(e *models.Event) error {
	if j.names == nil {
		return errors.New("jsonl: WriteEvent before WriteHeader")
	}

	buf := AppendEventJSON(j.buf[:0], j.names, e)
	buf = append(buf, '\n')
	j.buf = buf

	_, err := j.w.Write(buf)
	return err
}

// AppendEventJSON appends e as a JSON object to buf, "time" first and then
// the present variables in names order.
func AppendEventJSON(buf []byte, names []string, e *models.Event) []byte {
	buf = append(buf, `{"time":`...)
	buf = appendJSONValue(buf, e.Time)

	for _, name := range names {
		v, ok := e.Get(name)
		if !ok {
			continue
		}
		buf = append(buf, ',')
		buf = appendJSONValue(buf, name)
		buf = append(buf, ':')
		buf = appendJSONValue(buf, v)
	}
	return append(buf, '}')
}

func (j *JSONLinesWriter) Close() error {
	return j.w.Flush()
}

// appendJSONValue encodes one decoded value. Non-finite floats, which JSON
// cannot represent, are written as the strings "NaN", "+Inf" and "-Inf".
func appendJSONValue(buf []byte, v interface{}) []byte {
	switch val := v.(type) {
	case float64:
		switch {
		case math.IsNaN(val):
			return append(buf, `"NaN"`...)
		case math.IsInf(val, 1):
			return append(buf, `"+Inf"`...)
		case math.IsInf(val, -1):
			return append(buf, `"-Inf"`...)
		}
		return strconv.AppendFloat(buf, val, 'g', -1, 64)
	case int64:
		return strconv.AppendInt(buf, val, 10)
	case bool:
		return strconv.AppendBool(buf, val)
	case string:
		encoded, _ := json.Marshal(val)
		return append(buf, encoded...)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return append(buf, "null"...)
		}
		return append(buf, encoded...)
	}
}
