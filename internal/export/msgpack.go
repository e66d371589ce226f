package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/basekick-labs/fmilog/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
)

// HeaderRecord is the first MessagePack object of a stream
type HeaderRecord struct {
	Names []string          `msgpack:"names" json:"names"`
	Types map[string]string `msgpack:"types" json:"types"`
}

// EventRecord is the MessagePack and JSON form of one event
type EventRecord struct {
	Time   float64                `msgpack:"time" json:"time"`
	Values map[string]interface{} `msgpack:"values" json:"values"`
}

// NewHeaderRecord converts a parsed header
func NewHeaderRecord(h *ingest.Header) HeaderRecord {
	types := make(map[string]string, h.Len())
	for name, typ := range h.Types() {
		types[name] = typ.String()
	}
	return HeaderRecord{Names: h.Names(), Types: types}
}

// NewEventRecord converts an event
func NewEventRecord(e *models.Event) EventRecord {
	return EventRecord{Time: e.Time, Values: e.Values()}
}

// MsgPackWriter writes a HeaderRecord followed by one EventRecord per event
// as consecutive MessagePack objects.
type MsgPackWriter struct {
	w         *bufio.Writer
	enc       *msgpack.Encoder
	hasHeader bool
}

// NewMsgPackWriter creates a MessagePack writer
func NewMsgPackWriter(w io.Writer) *MsgPackWriter {
	bw := bufio.NewWriter(w)
	return &MsgPackWriter{w: bw, enc: msgpack.NewEncoder(bw)}
}

func (m *MsgPackWriter) WriteHeader(h *ingest.Header) error {
	if err := m.enc.Encode(NewHeaderRecord(h)); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	m.hasHeader = true
	return nil
}

func (m *MsgPackWriter) WriteEvent(e *models.Event) error {
	if !m.hasHeader {
		return errors.New("msgpack: WriteEvent before WriteHeader")
	}
	if err := m.enc.Encode(NewEventRecord(e)); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

func (m *MsgPackWriter) Close() error {
	return m.w.Flush()
}

// ReadMsgPack decodes a stream produced by MsgPackWriter
func ReadMsgPack(r io.Reader) (HeaderRecord, []EventRecord, error) {
	dec := msgpack.NewDecoder(r)

	var header HeaderRecord
	if err := dec.Decode(&header); err != nil {
		return header, nil, fmt.Errorf("failed to decode header: %w", err)
	}

	var events []EventRecord
	for {
		var rec EventRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return header, events, nil
		}
		if err != nil {
			return header, events, fmt.Errorf("failed to decode event %d: %w", len(events)+1, err)
		}
		events = append(events, rec)
	}
}
