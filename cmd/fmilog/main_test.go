package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/basekick-labs/fmilog/internal/config"
	"github.com/basekick-labs/fmilog/internal/export"
	"github.com/basekick-labs/fmilog/internal/storage"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLog = "\"time\";\"x\";\"s\"\n" +
	"\"fmiReal\";\"fmiInteger\";\"fmiString\"\n" +
	"0.0;1;\"a\"\n" +
	"1.0;;\"b;c\"\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Convert.Workers = 2
	return cfg
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newTestConverter(t *testing.T, cfg *config.Config, outDir string) *converter {
	t.Helper()
	backend, err := storage.NewLocalBackend(outDir, zerolog.Nop())
	require.NoError(t, err)
	return &converter{cfg: cfg, backend: backend, logger: zerolog.Nop()}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		path, format, want string
	}{
		{"/data/run.csv", "jsonl", "run.jsonl"},
		{"run.csv.gz", "parquet", "run.parquet"},
		{"logs/sim.txt.zst", "msgpack", "sim.msgpack"},
		{"plain", "jsonl", "plain.jsonl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outputName(tt.path, tt.format), tt.path)
	}
}

func TestCheckOutputNames(t *testing.T) {
	assert.NoError(t, checkOutputNames([]string{"a.csv", "b.csv"}, "jsonl"))
	assert.Error(t, checkOutputNames([]string{"a/run.csv", "b/run.csv.gz"}, "jsonl"))
}

func TestConverter_JSONLines(t *testing.T) {
	cfg := testConfig(t)
	in := t.TempDir()
	out := t.TempDir()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(testLog))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	files := []string{
		writeFile(t, in, "plain.csv", []byte(testLog)),
		writeFile(t, in, "packed.csv.gz", gz.Bytes()),
	}

	require.NoError(t, newTestConverter(t, cfg, out).run(context.Background(), files))

	for _, name := range []string{"plain.jsonl", "packed.jsonl"} {
		f, err := os.Open(filepath.Join(out, name))
		require.NoError(t, err)

		var rows []map[string]interface{}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var row map[string]interface{}
			require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
			rows = append(rows, row)
		}
		f.Close()

		require.Len(t, rows, 2, name)
		assert.Equal(t, map[string]interface{}{"time": 0.0, "x": 1.0, "s": "a"}, rows[0])
		assert.Equal(t, map[string]interface{}{"time": 1.0, "s": "b;c"}, rows[1])
	}
}

func TestConverter_MsgPack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Convert.Format = export.FormatMsgPack
	out := t.TempDir()
	file := writeFile(t, t.TempDir(), "run.csv", []byte(testLog))

	require.NoError(t, newTestConverter(t, cfg, out).run(context.Background(), []string{file}))

	f, err := os.Open(filepath.Join(out, "run.msgpack"))
	require.NoError(t, err)
	defer f.Close()

	header, events, err := export.ReadMsgPack(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "s"}, header.Names)
	require.Len(t, events, 2)
	assert.Equal(t, 1.0, events[1].Time)
}

func TestConverter_FailureLeavesNoOutput(t *testing.T) {
	cfg := testConfig(t)
	out := t.TempDir()
	bad := testLog + "2.0;oops;\"z\"\n"
	file := writeFile(t, t.TempDir(), "bad.csv", []byte(bad))

	err := newTestConverter(t, cfg, out).run(context.Background(), []string{file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.csv")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConverter_MissingFile(t *testing.T) {
	cfg := testConfig(t)
	err := newTestConverter(t, cfg, t.TempDir()).run(context.Background(), []string{"/nonexistent/run.csv"})
	assert.Error(t, err)
}

func TestRunHeader(t *testing.T) {
	cfg := testConfig(t)
	file := writeFile(t, t.TempDir(), "run.csv", []byte(testLog))

	var out bytes.Buffer
	require.NoError(t, runHeader(cfg, []string{file}, &out))
	assert.Equal(t, "NAME  TYPE\nx     INTEGER\ns     STRING\n", out.String())
}

func TestRunHeader_Args(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	assert.Error(t, runHeader(cfg, nil, &out))
}
