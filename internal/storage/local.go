package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/basekick-labs/fmilog/internal/metrics"
	"github.com/rs/zerolog"
)

// LocalBackend implements Backend on the local filesystem
type LocalBackend struct {
	basePath string
	logger   zerolog.Logger

	// directories already created, to skip repeated MkdirAll calls
	dirCache map[string]bool
	dirMu    sync.Mutex
}

// NewLocalBackend creates a new local filesystem storage backend
func NewLocalBackend(basePath string, logger zerolog.Logger) (*LocalBackend, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &LocalBackend{
		basePath: absPath,
		logger:   logger.With().Str("component", "local-storage").Logger(),
		dirCache: make(map[string]bool),
	}, nil
}

// Write writes data atomically (temp file, then rename)
func (b *LocalBackend) Write(ctx context.Context, path string, data []byte) error {
	return b.WriteReader(ctx, path, bytes.NewReader(data))
}

// WriteReader streams reader into a temp file next to path and renames it into place
func (b *LocalBackend) WriteReader(ctx context.Context, path string, reader io.Reader) error {
	m := metrics.Get()

	fullPath, err := b.validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := b.ensureDir(dir); err != nil {
		m.IncStorageErrors()
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".fmilog-*.tmp")
	if err != nil {
		m.IncStorageErrors()
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, copyErr := io.Copy(tmpFile, reader)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		m.IncStorageErrors()
		return fmt.Errorf("failed to write temp file: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		m.IncStorageErrors()
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		m.IncStorageErrors()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	m.IncStorageWrites()
	m.IncStorageWriteBytes(written)
	b.logger.Debug().
		Str("path", path).
		Int64("size", written).
		Msg("Wrote file")

	return nil
}

func (b *LocalBackend) ensureDir(dir string) error {
	b.dirMu.Lock()
	defer b.dirMu.Unlock()

	if b.dirCache[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	b.dirCache[dir] = true
	return nil
}

// Read reads data from the specified path
func (b *LocalBackend) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Delete removes the file at path. Deleting a missing file is not an error.
func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists at path
func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return false, fmt.Errorf("invalid path: %w", err)
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Close is a no-op for local storage
func (b *LocalBackend) Close() error {
	return nil
}

// Type returns "local"
func (b *LocalBackend) Type() string {
	return "local"
}

// GetFullPath returns the absolute filesystem path for path
func (b *LocalBackend) GetFullPath(path string) string {
	return filepath.Join(b.basePath, sanitizePath(path))
}

// sanitizePath removes any potentially dangerous path components
func sanitizePath(path string) string {
	path = strings.TrimPrefix(path, "/")
	path = strings.ReplaceAll(path, "..", "_")
	path = strings.ReplaceAll(path, "\x00", "")
	return path
}

// validatePath ensures the resolved path stays within the base path
func (b *LocalBackend) validatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	absPath, err := filepath.Abs(filepath.Join(b.basePath, sanitizePath(path)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	relPath, err := filepath.Rel(b.basePath, absPath)
	if err != nil {
		return "", fmt.Errorf("path traversal detected")
	}
	if relPath == "." || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path traversal detected: path escapes base directory")
	}
	return absPath, nil
}
