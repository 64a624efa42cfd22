package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type localArchiveSink struct {
	dir string
}

// NewLocalArchiveSink writes archives into dir, creating it if needed
func NewLocalArchiveSink(dir string) (ArchiveSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &localArchiveSink{dir: dir}, nil
}

// Store writes data to dir/name atomically and returns the file path
func (s *localArchiveSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, filepath.Base(name))
	tmp, err := os.CreateTemp(s.dir, ".archive-*")
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to store archive: %w", err)
	}
	return target, nil
}
