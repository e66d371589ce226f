// Package export writes parsed event streams to JSON Lines, MessagePack and
// Parquet.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/basekick-labs/fmilog/internal/metrics"
	"github.com/basekick-labs/fmilog/pkg/models"
)

// Supported output formats
const (
	FormatJSONLines = "jsonl"
	FormatMsgPack   = "msgpack"
	FormatParquet   = "parquet"
)

// contextCheckInterval is how many events Convert processes between context checks
const contextCheckInterval = 1000

// Writer receives a header once and then every event in order
type Writer interface {
	WriteHeader(h *ingest.Header) error
	WriteEvent(e *models.Event) error
	// Close flushes buffered output. It does not close the destination.
	Close() error
}

// Extension returns the file extension for a format
func Extension(format string) string {
	switch format {
	case FormatMsgPack:
		return ".msgpack"
	case FormatParquet:
		return ".parquet"
	default:
		return ".jsonl"
	}
}

// ValidateFormat rejects unknown output formats
func ValidateFormat(format string) error {
	switch format {
	case FormatJSONLines, FormatMsgPack, FormatParquet:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use jsonl, msgpack or parquet)", format)
	}
}

// NewWriter creates a writer for format writing to w
func NewWriter(format string, w io.Writer, opts ParquetOptions) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatJSONLines:
		return NewJSONLinesWriter(w), nil
	case FormatMsgPack:
		return NewMsgPackWriter(w), nil
	case FormatParquet:
		return NewParquetWriter(w, opts)
	default:
		return nil, ValidateFormat(format)
	}
}

// Convert streams every remaining event of r into w and closes w.
// It returns the number of events written.
func Convert(ctx context.Context, r *ingest.Reader, w Writer) (int64, error) {
	m := metrics.Get()

	if err := w.WriteHeader(r.ParsedHeader()); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	var count int64
	for {
		if count%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return count, err
			}
		}

		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			m.IncParseError(ingest.Kind(err))
			return count, err
		}
		m.IncEventsParsed(1)

		if err := w.WriteEvent(event); err != nil {
			return count, fmt.Errorf("failed to write event %d: %w", count+1, err)
		}
		count++
	}

	if err := w.Close(); err != nil {
		return count, fmt.Errorf("failed to finish output: %w", err)
	}
	m.IncEventsExported(count)
	return count, nil
}
