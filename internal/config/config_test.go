package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "auto", cfg.Input.Compression)
	assert.Equal(t, int64(16*1024*1024), cfg.Input.MaxLineSize)
	assert.Equal(t, "reject", cfg.Parse.DuplicateNames)
	assert.Equal(t, "jsonl", cfg.Convert.Format)
	assert.Equal(t, getDefaultWorkers(), cfg.Convert.Workers)
	assert.Equal(t, "snappy", cfg.Parquet.Compression)
	assert.True(t, cfg.Parquet.UseDictionary)
	assert.Equal(t, 65536, cfg.Parquet.RowGroupSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(256*1024*1024), cfg.Server.MaxPayloadSize)
}

func TestGetDefaultWorkers_Bounds(t *testing.T) {
	w := getDefaultWorkers()
	assert.GreaterOrEqual(t, w, 1)
	assert.LessOrEqual(t, w, 16)
	if runtime.NumCPU() <= 16 {
		assert.Equal(t, runtime.NumCPU(), w)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FMILOG_CONVERT_FORMAT", "PARQUET")
	t.Setenv("FMILOG_PARSE_DUPLICATE_NAMES", "last-wins")
	t.Setenv("FMILOG_INPUT_MAX_LINE_SIZE", "1MB")
	t.Setenv("FMILOG_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "parquet", cfg.Convert.Format)
	assert.Equal(t, "last-wins", cfg.Parse.DuplicateNames)
	assert.Equal(t, int64(1024*1024), cfg.Input.MaxLineSize)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := `
[log]
level = "debug"
format = "console"

[convert]
format = "msgpack"
workers = 3

[parquet]
compression = "zstd"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fmilog.toml"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "msgpack", cfg.Convert.Format)
	assert.Equal(t, 3, cfg.Convert.Workers)
	assert.Equal(t, "zstd", cfg.Parquet.Compression)
}

func TestLoad_InvalidSize(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FMILOG_SERVER_MAX_PAYLOAD_SIZE", "1TB")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.max_payload_size")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad compression", func(c *Config) { c.Input.Compression = "bzip2" }, "input.compression"},
		{"bad duplicate policy", func(c *Config) { c.Parse.DuplicateNames = "first-wins" }, "parse.duplicate_names"},
		{"bad format", func(c *Config) { c.Convert.Format = "csv" }, "convert.format"},
		{"zero workers", func(c *Config) { c.Convert.Workers = 0 }, "convert.workers"},
		{"bad parquet codec", func(c *Config) { c.Parquet.Compression = "lz4" }, "parquet.compression"},
		{"bad page version", func(c *Config) { c.Parquet.DataPageVersion = "3.0" }, "parquet.data_page_version"},
		{"zero row group", func(c *Config) { c.Parquet.RowGroupSize = 0 }, "parquet.row_group_size"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero line size", func(c *Config) { c.Input.MaxLineSize = 0 }, "input.max_line_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1GB", 1024 * 1024 * 1024, false},
		{"500MB", 500 * 1024 * 1024, false},
		{"100kb", 100 * 1024, false},
		{"1.5MB", 1572864, false},
		{"42B", 42, false},
		{"1024", 1024, false},
		{" 2 MB ", 2 * 1024 * 1024, false},
		{"", 0, true},
		{"1TB", 0, true},
		{"abc", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
