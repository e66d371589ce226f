package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxLineSize bounds a single physical line read by LineSource
const DefaultMaxLineSize = 16 * 1024 * 1024

// RowSource yields one raw row at a time, split on every delimiter without
// honouring quotes. ReadRow returns io.EOF when no rows remain.
type RowSource interface {
	ReadRow() ([]string, error)
	// Line returns the 1-based number of the row last returned
	Line() int
}

// LineSource splits the lines of an io.Reader on every ';'
type LineSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewLineSource creates a LineSource. maxLineSize <= 0 selects DefaultMaxLineSize.
func NewLineSource(r io.Reader, maxLineSize int) *LineSource {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	scanner := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > maxLineSize {
		initial = maxLineSize
	}
	scanner.Buffer(make([]byte, 0, initial), maxLineSize)
	return &LineSource{scanner: scanner}
}

// ReadRow returns the next line split on ';'. A blank line yields an empty row.
func (s *LineSource) ReadRow() ([]string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", s.line+1, err)
		}
		return nil, io.EOF
	}
	s.line++

	text := strings.TrimSuffix(s.scanner.Text(), "\r")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, string(Delimiter)), nil
}

// Line returns the number of the line last read
func (s *LineSource) Line() int {
	return s.line
}

// SliceSource serves rows that were split beforehand
type SliceSource struct {
	rows [][]string
	pos  int
}

// NewSliceSource creates a source over rows. The rows are not copied.
func NewSliceSource(rows [][]string) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) ReadRow() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *SliceSource) Line() int {
	return s.pos
}

// Compression modes accepted by Decompress
const (
	CompressionAuto = "auto"
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Decompress wraps r according to mode. The returned closer releases decoder
// state and must be called by the caller; it does not close r.
func Decompress(r io.Reader, mode string) (io.Reader, func(), error) {
	noop := func() {}

	switch strings.ToLower(mode) {
	case "", CompressionNone:
		return r, noop, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return dec, dec.Close, nil
	case CompressionAuto:
		br := bufio.NewReader(r)
		head, err := br.Peek(4)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, nil, fmt.Errorf("failed to sniff compression: %w", err)
		}
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			return Decompress(br, CompressionGzip)
		case bytes.HasPrefix(head, zstdMagic):
			return Decompress(br, CompressionZstd)
		default:
			return br, noop, nil
		}
	default:
		return nil, nil, fmt.Errorf("unsupported compression %q (use auto, none, gzip or zstd)", mode)
	}
}
