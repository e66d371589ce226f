package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/basekick-labs/fmilog/pkg/models"
)

// memory.GoAllocator is safe for concurrent use
var sharedArrowAllocator = memory.NewGoAllocator()

// ParquetOptions configures the Parquet writer
type ParquetOptions struct {
	Compression     string // snappy, gzip, zstd, none
	UseDictionary   bool
	WriteStatistics bool
	DataPageVersion string // "1.0" or "2.0"
	RowGroupSize    int    // events per row group
}

// DefaultParquetOptions mirrors the configuration defaults
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression:     "snappy",
		UseDictionary:   true,
		WriteStatistics: true,
		DataPageVersion: "2.0",
		RowGroupSize:    65536,
	}
}

// ParquetWriter buffers events into row groups and writes one Parquet file.
// Every variable becomes a nullable column; unobserved values are null.
type ParquetWriter struct {
	dst    io.Writer
	buf    bytes.Buffer
	opts   ParquetOptions
	header *ingest.Header
	schema *arrow.Schema
	fw     *pqarrow.FileWriter
	batch  []*models.Event
	rows   int64
}

// NewParquetWriter creates a Parquet writer. The file is written to w on Close.
func NewParquetWriter(w io.Writer, opts ParquetOptions) (*ParquetWriter, error) {
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = DefaultParquetOptions().RowGroupSize
	}
	if _, err := parseCompression(opts.Compression); err != nil {
		return nil, err
	}
	return &ParquetWriter{dst: w, opts: opts}, nil
}

func parseCompression(name string) (compress.Compression, error) {
	switch name {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported parquet compression %q", name)
	}
}

// ArrowSchema maps a header onto an Arrow schema with a non-null time column
func ArrowSchema(h *ingest.Header) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, h.Len()+1)
	fields = append(fields, arrow.Field{Name: models.TimeField, Type: arrow.PrimitiveTypes.Float64})

	for _, name := range h.Names() {
		if name == models.TimeField {
			return nil, fmt.Errorf("variable %q collides with the time column", name)
		}
		typ, _ := h.Type(name)
		var arrowType arrow.DataType
		switch typ {
		case models.Real:
			arrowType = arrow.PrimitiveTypes.Float64
		case models.Integer:
			arrowType = arrow.PrimitiveTypes.Int64
		case models.Boolean:
			arrowType = arrow.FixedWidthTypes.Boolean
		case models.String:
			arrowType = arrow.BinaryTypes.String
		default:
			return nil, fmt.Errorf("column %q: %w: %v", name, ingest.ErrTypeInvariant, typ)
		}
		fields = append(fields, arrow.Field{Name: name, Type: arrowType, Nullable: true})
	}

	return arrow.NewSchema(fields, nil), nil
}

func (p *ParquetWriter) WriteHeader(h *ingest.Header) error {
	schema, err := ArrowSchema(h)
	if err != nil {
		return err
	}
	comp, _ := parseCompression(p.opts.Compression)

	writerOpts := []parquet.WriterProperty{
		parquet.WithCompression(comp),
		parquet.WithDictionaryDefault(p.opts.UseDictionary),
		parquet.WithStats(p.opts.WriteStatistics),
	}
	if p.opts.DataPageVersion == "2.0" {
		writerOpts = append(writerOpts, parquet.WithDataPageVersion(parquet.DataPageV2))
	}
	writerProps := parquet.NewWriterProperties(writerOpts...)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, &p.buf, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	p.header = h
	p.schema = schema
	p.fw = fw
	p.batch = make([]*models.Event, 0, p.opts.RowGroupSize)
	return nil
}

func (p *ParquetWriter) WriteEvent(e *models.Event) error {
	if p.fw == nil {
		return errors.New("parquet: WriteEvent before WriteHeader")
	}
	p.batch = append(p.batch, e)
	if len(p.batch) >= p.opts.RowGroupSize {
		return p.flush()
	}
	return nil
}

// Close writes the last row group, finalizes the file and copies it to the destination
func (p *ParquetWriter) Close() error {
	if p.fw == nil {
		return errors.New("parquet: Close before WriteHeader")
	}
	if err := p.flush(); err != nil {
		p.fw.Close()
		return err
	}
	if err := p.fw.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	_, err := p.dst.Write(p.buf.Bytes())
	return err
}

// Rows returns the number of rows written so far
func (p *ParquetWriter) Rows() int64 {
	return p.rows
}

func (p *ParquetWriter) flush() error {
	if len(p.batch) == 0 {
		return nil
	}

	cols, err := ingest.EventsToColumns(p.header, p.batch)
	if err != nil {
		return err
	}

	record, err := buildRecord(p.schema, cols)
	if err != nil {
		return err
	}
	defer record.Release()

	if err := p.fw.Write(record); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	p.rows += int64(cols.Rows)
	p.batch = p.batch[:0]
	return nil
}

// buildRecord turns typed columns into an Arrow record matching schema
func buildRecord(schema *arrow.Schema, cols *ingest.Columns) (arrow.Record, error) {
	mem := sharedArrowAllocator
	arrays := make([]arrow.Array, len(schema.Fields()))

	// Release arrays; the record keeps its own references
	defer func() {
		for _, arr := range arrays {
			if arr != nil {
				arr.Release()
			}
		}
	}()

	for i, field := range schema.Fields() {
		col := cols.Data[field.Name]
		valid := cols.Validity[field.Name]

		switch field.Type.ID() {
		case arrow.FLOAT64:
			values, ok := col.([]float64)
			if !ok {
				return nil, fmt.Errorf("column %s: expected []float64, got %T", field.Name, col)
			}
			b := array.NewFloat64Builder(mem)
			b.AppendValues(values, valid)
			arrays[i] = b.NewArray()
			b.Release()
		case arrow.INT64:
			values, ok := col.([]int64)
			if !ok {
				return nil, fmt.Errorf("column %s: expected []int64, got %T", field.Name, col)
			}
			b := array.NewInt64Builder(mem)
			b.AppendValues(values, valid)
			arrays[i] = b.NewArray()
			b.Release()
		case arrow.BOOL:
			values, ok := col.([]bool)
			if !ok {
				return nil, fmt.Errorf("column %s: expected []bool, got %T", field.Name, col)
			}
			b := array.NewBooleanBuilder(mem)
			b.AppendValues(values, valid)
			arrays[i] = b.NewArray()
			b.Release()
		case arrow.STRING:
			values, ok := col.([]string)
			if !ok {
				return nil, fmt.Errorf("column %s: expected []string, got %T", field.Name, col)
			}
			b := array.NewStringBuilder(mem)
			b.AppendValues(values, valid)
			arrays[i] = b.NewArray()
			b.Release()
		default:
			return nil, fmt.Errorf("unsupported Arrow type for column %s: %s", field.Name, field.Type.Name())
		}
	}

	return array.NewRecord(schema, arrays, int64(cols.Rows)), nil
}
