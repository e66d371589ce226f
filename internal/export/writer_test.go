package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T, input string) *ingest.Reader {
	t.Helper()
	r, err := ingest.NewReader(ingest.NewLineSource(strings.NewReader(input), 0))
	require.NoError(t, err)
	return r
}

// sampleLog declares one variable of each type; the second row leaves
// everything but the string unobserved.
func sampleLog() string {
	return "\"time\";\"r\";\"i\";\"b\";\"s\"\n" +
		"\"fmiReal\";\"fmiReal\";\"fmiInteger\";\"fmiBoolean\";\"fmiString\"\n" +
		"0.0;1.5;7;1;\"a;b\"\n" +
		"0.5;;;;\"\"\"q\"\"\"\n" +
		"1.0;nan;-3;0;\n"
}

func TestConvert_JSONLines(t *testing.T) {
	var out bytes.Buffer
	n, err := Convert(context.Background(), newReader(t, sampleLog()), NewJSONLinesWriter(&out))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `{"time":0,"r":1.5,"i":7,"b":true,"s":"a;b"}`, lines[0])
	assert.Equal(t, `{"time":0.5,"s":"\"q\""}`, lines[1])
	assert.Equal(t, `{"time":1,"r":"NaN","i":-3,"b":false}`, lines[2])

	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}

func TestConvert_MsgPackRoundTrip(t *testing.T) {
	var out bytes.Buffer
	n, err := Convert(context.Background(), newReader(t, sampleLog()), NewMsgPackWriter(&out))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	header, events, err := ReadMsgPack(&out)
	require.NoError(t, err)

	assert.Equal(t, []string{"r", "i", "b", "s"}, header.Names)
	assert.Equal(t, map[string]string{
		"r": "REAL", "i": "INTEGER", "b": "BOOLEAN", "s": "STRING",
	}, header.Types)

	require.Len(t, events, 3)
	assert.Equal(t, 0.0, events[0].Time)
	assert.Equal(t, 1.5, events[0].Values["r"])
	assert.EqualValues(t, 7, events[0].Values["i"])
	assert.Equal(t, true, events[0].Values["b"])
	assert.Equal(t, "a;b", events[0].Values["s"])

	assert.Equal(t, map[string]interface{}{"s": `"q"`}, events[1].Values)
	assert.EqualValues(t, -3, events[2].Values["i"])
}

func TestConvert_ParquetReadBack(t *testing.T) {
	var out bytes.Buffer
	opts := DefaultParquetOptions()
	opts.RowGroupSize = 2 // two row groups

	w, err := NewParquetWriter(&out, opts)
	require.NoError(t, err)
	n, err := Convert(context.Background(), newReader(t, sampleLog()), w)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(3), w.Rows())

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(out.Bytes()), parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer tbl.Release()

	require.Equal(t, int64(3), tbl.NumRows())
	schema := tbl.Schema()
	require.Equal(t, 5, schema.NumFields())
	assert.Equal(t, "time", schema.Field(0).Name)
	assert.False(t, schema.Field(0).Nullable)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(2).Type)

	col := func(i int) []arrow.Array { return tbl.Column(i).Data().Chunks() }

	var times []float64
	for _, chunk := range col(0) {
		times = append(times, chunk.(*array.Float64).Float64Values()...)
	}
	assert.Equal(t, []float64{0, 0.5, 1}, times)

	// i: 7, null, -3
	var ints []interface{}
	for _, chunk := range col(2) {
		arr := chunk.(*array.Int64)
		for j := 0; j < arr.Len(); j++ {
			if arr.IsNull(j) {
				ints = append(ints, nil)
			} else {
				ints = append(ints, arr.Value(j))
			}
		}
	}
	assert.Equal(t, []interface{}{int64(7), nil, int64(-3)}, ints)

	// s: "a;b", `"q"`, null
	var strs []interface{}
	for _, chunk := range col(4) {
		arr := chunk.(*array.String)
		for j := 0; j < arr.Len(); j++ {
			if arr.IsNull(j) {
				strs = append(strs, nil)
			} else {
				strs = append(strs, arr.Value(j))
			}
		}
	}
	assert.Equal(t, []interface{}{"a;b", `"q"`, nil}, strs)
}

func TestConvert_ParquetZeroVariables(t *testing.T) {
	var out bytes.Buffer
	w, err := NewParquetWriter(&out, DefaultParquetOptions())
	require.NoError(t, err)

	n, err := Convert(context.Background(), newReader(t, "\"time\";\n\"fmiReal\";\n0.0\n2.0\n"), w)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(out.Bytes()), parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer tbl.Release()
	assert.Equal(t, int64(2), tbl.NumRows())
	assert.Equal(t, 1, tbl.Schema().NumFields())
}

func TestConvert_StopsOnParseError(t *testing.T) {
	input := sampleLog() + "2.0;x;1;1;\"z\"\n"
	var out bytes.Buffer

	n, err := Convert(context.Background(), newReader(t, input), NewJSONLinesWriter(&out))
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrFieldConversion)
	assert.Equal(t, 6, ingest.Line(err))
	assert.Equal(t, int64(3), n)
}

func TestConvert_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	n, err := Convert(ctx, newReader(t, sampleLog()), NewJSONLinesWriter(&out))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Zero(t, out.Len())
}

func TestWriteEventBeforeHeader(t *testing.T) {
	var out bytes.Buffer
	ev := newReader(t, sampleLog())
	e, err := ev.Next()
	require.NoError(t, err)

	assert.Error(t, NewJSONLinesWriter(&out).WriteEvent(e))
	assert.Error(t, NewMsgPackWriter(&out).WriteEvent(e))

	pw, err := NewParquetWriter(&out, DefaultParquetOptions())
	require.NoError(t, err)
	assert.Error(t, pw.WriteEvent(e))
}

func TestNewWriter(t *testing.T) {
	var out bytes.Buffer
	for _, format := range []string{FormatJSONLines, FormatMsgPack, FormatParquet} {
		w, err := NewWriter(format, &out, DefaultParquetOptions())
		require.NoError(t, err, format)
		assert.NotNil(t, w)
		assert.NotEmpty(t, Extension(format))
	}

	_, err := NewWriter("csv", &out, DefaultParquetOptions())
	assert.Error(t, err)

	opts := DefaultParquetOptions()
	opts.Compression = "lz4"
	_, err = NewParquetWriter(&out, opts)
	assert.Error(t, err)
}

func TestAppendEventJSON_Order(t *testing.T) {
	r := newReader(t, sampleLog())
	e, err := r.Next()
	require.NoError(t, err)

	got := AppendEventJSON(nil, []string{"s", "r"}, e)
	assert.Equal(t, `{"time":0,"s":"a;b","r":1.5}`, string(got))

	// JSON Lines output is one object per line
	var buf bytes.Buffer
	w := NewJSONLinesWriter(&buf)
	require.NoError(t, w.WriteHeader(r.ParsedHeader()))
	require.NoError(t, w.WriteEvent(e))
	require.NoError(t, w.Close())
	sc := bufio.NewScanner(&buf)
	require.True(t, sc.Scan())
	assert.False(t, sc.Scan())
}
