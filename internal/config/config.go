package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for fmilog
type Config struct {
	Log     LogConfig
	Input   InputConfig
	Parse   ParseConfig
	Convert ConvertConfig
	Parquet ParquetConfig
	Server  ServerConfig
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type InputConfig struct {
	Compression string // auto, none, gzip, zstd
	MaxLineSize int64  // Longest accepted physical line in bytes
}

type ParseConfig struct {
	DuplicateNames string // reject or last-wins
}

type ConvertConfig struct {
	Format    string // jsonl, msgpack, parquet
	OutputDir string
	Workers   int // Files converted concurrently (default: CPU count, min 1, max 16)
}

type ParquetConfig struct {
	Compression     string // snappy, gzip, zstd, none
	UseDictionary   bool
	WriteStatistics bool
	DataPageVersion string // 1.0 or 2.0
	RowGroupSize    int    // Events buffered per row group
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	MaxPayloadSize int64 // Maximum request payload size in bytes (applies to both compressed and decompressed)
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FMILOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("fmilog")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fmilog/")
	v.AddConfigPath("$HOME/.fmilog/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	maxPayloadSize, err := ParseSize(v.GetString("server.max_payload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.max_payload_size: %w", err)
	}
	maxLineSize, err := ParseSize(v.GetString("input.max_line_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid input.max_line_size: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Input: InputConfig{
			Compression: strings.ToLower(v.GetString("input.compression")),
			MaxLineSize: maxLineSize,
		},
		Parse: ParseConfig{
			DuplicateNames: strings.ToLower(v.GetString("parse.duplicate_names")),
		},
		Convert: ConvertConfig{
			Format:    strings.ToLower(v.GetString("convert.format")),
			OutputDir: v.GetString("convert.output_dir"),
			Workers:   v.GetInt("convert.workers"),
		},
		Parquet: ParquetConfig{
			Compression:     strings.ToLower(v.GetString("parquet.compression")),
			UseDictionary:   v.GetBool("parquet.use_dictionary"),
			WriteStatistics: v.GetBool("parquet.write_statistics"),
			DataPageVersion: v.GetString("parquet.data_page_version"),
			RowGroupSize:    v.GetInt("parquet.row_group_size"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetInt("server.read_timeout"),
			WriteTimeout:   v.GetInt("server.write_timeout"),
			MaxPayloadSize: maxPayloadSize,
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Input defaults
	v.SetDefault("input.compression", "auto")
	v.SetDefault("input.max_line_size", "16MB")

	// Parse defaults
	v.SetDefault("parse.duplicate_names", "reject")

	// Convert defaults
	v.SetDefault("convert.format", "jsonl")
	v.SetDefault("convert.output_dir", "./out")
	v.SetDefault("convert.workers", getDefaultWorkers())

	// Parquet defaults
	v.SetDefault("parquet.compression", "snappy")
	v.SetDefault("parquet.use_dictionary", true)
	v.SetDefault("parquet.write_statistics", true)
	v.SetDefault("parquet.data_page_version", "2.0")
	v.SetDefault("parquet.row_group_size", 65536)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.max_payload_size", "256MB")
}

func getDefaultWorkers() int {
	workers := runtime.NumCPU()
	if workers < 1 {
		return 1
	}
	if workers > 16 {
		return 16
	}
	return workers
}

// Validate rejects unknown enum values and non-positive sizes.
func (cfg *Config) Validate() error {
	if err := oneOf("log.format", cfg.Log.Format, "json", "console"); err != nil {
		return err
	}
	if err := oneOf("input.compression", cfg.Input.Compression, "auto", "none", "gzip", "zstd"); err != nil {
		return err
	}
	if cfg.Input.MaxLineSize <= 0 {
		return fmt.Errorf("input.max_line_size must be positive")
	}
	if err := oneOf("parse.duplicate_names", cfg.Parse.DuplicateNames, "reject", "last-wins", "last_wins"); err != nil {
		return err
	}
	if err := oneOf("convert.format", cfg.Convert.Format, "jsonl", "msgpack", "parquet"); err != nil {
		return err
	}
	if cfg.Convert.Workers < 1 {
		return fmt.Errorf("convert.workers must be at least 1, got %d", cfg.Convert.Workers)
	}
	if err := oneOf("parquet.compression", cfg.Parquet.Compression, "snappy", "gzip", "zstd", "none"); err != nil {
		return err
	}
	if err := oneOf("parquet.data_page_version", cfg.Parquet.DataPageVersion, "1.0", "2.0"); err != nil {
		return err
	}
	if cfg.Parquet.RowGroupSize < 1 {
		return fmt.Errorf("parquet.row_group_size must be at least 1, got %d", cfg.Parquet.RowGroupSize)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxPayloadSize <= 0 {
		return fmt.Errorf("server.max_payload_size must be positive")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (expected one of: %s)", key, value, strings.Join(allowed, ", "))
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
// Returns the size in bytes or an error if the format is invalid.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longer suffixes first
	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				// e.g. the "T" in "1TB"
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Plain number (bytes)
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
