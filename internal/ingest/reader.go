package ingest

import (
	"errors"
	"io"
	"iter"

	"github.com/basekick-labs/fmilog/pkg/models"
	"github.com/rs/zerolog"
)

// Reader produces the events of one event log. The header is read once by
// NewReader; Next then pulls and decodes one row per call. A Reader is a
// single pass over its source and is not safe for concurrent use.
type Reader struct {
	src    RowSource
	header *Header
	done   bool
	logger zerolog.Logger
}

var _ models.EventReader = (*Reader)(nil)

// Option configures a Reader
type Option func(*readerOptions)

type readerOptions struct {
	policy DuplicatePolicy
	logger zerolog.Logger
}

// WithDuplicatePolicy sets how repeated variable names in the header are handled
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(o *readerOptions) { o.policy = p }
}

// WithLogger attaches a logger; the default discards everything
func WithLogger(logger zerolog.Logger) Option {
	return func(o *readerOptions) { o.logger = logger }
}

// NewReader reads and validates the header of src. It fails with the header
// errors (ErrMissingHeader, ErrHeaderShape, ErrQuoteFormat) on malformed input.
func NewReader(src RowSource, opts ...Option) (*Reader, error) {
	o := readerOptions{policy: DuplicateReject, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	header, err := parseHeader(src, o.policy)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:    src,
		header: header,
		logger: o.logger.With().Str("component", "event-reader").Logger(),
	}
	r.logger.Debug().
		Int("variables", header.Len()).
		Strs("names", header.names).
		Msg("Parsed event log header")
	return r, nil
}

// ParsedHeader returns the header with names in column order
func (r *Reader) ParsedHeader() *Header {
	return r.header
}

// Header returns a copy of the variable name to type mapping
func (r *Reader) Header() map[string]models.SimulationDataType {
	return r.header.Types()
}

// Names returns the variable names in column order
func (r *Reader) Names() []string {
	return r.header.Names()
}

// Next returns the next event, or io.EOF once the source is exhausted.
// Errors are returned as *ParseError carrying the offending line.
func (r *Reader) Next() (*models.Event, error) {
	if r.done {
		return nil, io.EOF
	}

	raw, err := r.src.ReadRow()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.done = true
			return nil, io.EOF
		}
		return nil, err
	}

	event, err := r.header.ParseRow(MergeFields(raw))
	if err != nil {
		return nil, &ParseError{Line: r.src.Line(), Err: err}
	}
	return event, nil
}

// All returns an iterator over the remaining events. Iteration stops after
// the first error, which is yielded together with a nil event.
func (r *Reader) All() iter.Seq2[*models.Event, error] {
	return func(yield func(*models.Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}
