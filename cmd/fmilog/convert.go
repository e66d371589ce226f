package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/basekick-labs/fmilog/internal/config"
	"github.com/basekick-labs/fmilog/internal/export"
	"github.com/basekick-labs/fmilog/internal/logger"
	"github.com/basekick-labs/fmilog/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func runConvert(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	format := fs.String("format", cfg.Convert.Format, "output format: jsonl, msgpack, parquet")
	outDir := fs.String("out", cfg.Convert.OutputDir, "output directory")
	workers := fs.Int("workers", cfg.Convert.Workers, "files converted concurrently")
	compression := fs.String("compression", cfg.Input.Compression, "input compression: auto, none, gzip, zstd")
	duplicates := fs.String("duplicates", cfg.Parse.DuplicateNames, "duplicate variable names: reject, last-wins")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("convert expects at least one file")
	}

	cfg.Convert.Format = strings.ToLower(*format)
	cfg.Convert.OutputDir = *outDir
	cfg.Convert.Workers = *workers
	cfg.Input.Compression = strings.ToLower(*compression)
	cfg.Parse.DuplicateNames = *duplicates
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.New().String()[:8]
	l := logger.Get("convert").With().Str("run_id", runID).Logger()

	backend, err := storage.NewLocalBackend(cfg.Convert.OutputDir, l)
	if err != nil {
		return err
	}
	defer backend.Close()

	c := &converter{
		cfg:     cfg,
		backend: backend,
		logger:  l,
	}
	return c.run(ctx, fs.Args())
}

// converter turns event logs into export files, one output per input
type converter struct {
	cfg     *config.Config
	backend storage.Backend
	logger  zerolog.Logger
}

func (c *converter) run(ctx context.Context, files []string) error {
	start := time.Now()

	if err := checkOutputNames(files, c.cfg.Convert.Format); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Convert.Workers)

	for _, file := range files {
		g.Go(func() error {
			return c.convertFile(gctx, file)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info().
		Int("files", len(files)).
		Dur("duration_ms", time.Since(start)).
		Msg("Conversion complete")
	return nil
}

// convertFile streams one log through the exporter into the storage
// backend. The output only appears once the whole log converted cleanly.
func (c *converter) convertFile(ctx context.Context, path string) error {
	start := time.Now()

	reader, closeFn, err := openLog(path, c.cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	pr, pw := io.Pipe()
	w, err := export.NewWriter(c.cfg.Convert.Format, pw, parquetOptions(c.cfg))
	if err != nil {
		return err
	}

	type result struct {
		count int64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		count, err := export.Convert(ctx, reader, w)
		pw.CloseWithError(err)
		done <- result{count, err}
	}()

	outName := outputName(path, c.cfg.Convert.Format)
	writeErr := c.backend.WriteReader(ctx, outName, pr)
	// Unblock the converter if the backend stopped reading early
	pr.CloseWithError(writeErr)
	res := <-done

	if res.err != nil {
		return fmt.Errorf("%s: %w", path, res.err)
	}
	if writeErr != nil {
		return fmt.Errorf("%s: %w", path, writeErr)
	}

	c.logger.Info().
		Str("file", path).
		Str("output", outName).
		Int64("events", res.count).
		Dur("duration_ms", time.Since(start)).
		Msg("Converted event log")
	return nil
}

func parquetOptions(cfg *config.Config) export.ParquetOptions {
	return export.ParquetOptions{
		Compression:     cfg.Parquet.Compression,
		UseDictionary:   cfg.Parquet.UseDictionary,
		WriteStatistics: cfg.Parquet.WriteStatistics,
		DataPageVersion: cfg.Parquet.DataPageVersion,
		RowGroupSize:    cfg.Parquet.RowGroupSize,
	}
}

// outputName maps an input path to its output file name, dropping
// compression and text extensions: run.csv.gz -> run.jsonl
func outputName(path, format string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".gzip", ".zst", ".zstd"} {
		base = strings.TrimSuffix(base, ext)
	}
	for _, ext := range []string{".csv", ".txt", ".log"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base + export.Extension(format)
}

// checkOutputNames rejects inputs that would overwrite each other's output
func checkOutputNames(files []string, format string) error {
	seen := make(map[string]string, len(files))
	for _, f := range files {
		name := outputName(f, format)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s and %s would both write %s", prev, f, name)
		}
		seen[name] = f
	}
	return nil
}
