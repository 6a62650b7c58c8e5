package dataframe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/datastep-labs/datastep/internal/dataset"
)

// LocalStore persists datasets as CSV files under a root directory.
// Saved datasets land at <root>/<sessionID>/<name>.csv; loads accept any
// path, absolute or relative to the root.
type LocalStore struct {
	root   string
	logger *slog.Logger
	loads  singleflight.Group
}

// NewLocalStore creates a store rooted at dir. A nil logger discards.
func NewLocalStore(dir string, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LocalStore{root: dir, logger: logger}
}

// Load reads a dataset from a CSV file. Concurrent loads of the same path
// (steps in different sessions sharing a source) collapse into one read.
func (s *LocalStore) Load(ctx context.Context, path string) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(s.root, path)
	}

	v, err, _ := s.loads.Do(resolved, func() (any, error) {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
		}
		defer f.Close()

		ds, err := dataset.ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
		}
		return ds, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("dataset loaded", "path", resolved)

	// Callers on a shared load get independent copies so step immutability
	// cannot be broken across sessions.
	return v.(*dataset.Dataset).Clone(), nil
}

// Save writes a dataset under the session's directory and returns the
// store path relative to the root.
func (s *LocalStore) Save(ctx context.Context, sessionID, name string, ds *dataset.Dataset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	rel := filepath.Join(sessionID, name+".csv")
	full := filepath.Join(s.root, rel)

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	if err := ds.WriteCSV(f); err != nil {
		return "", fmt.Errorf("failed to write dataset %s: %w", rel, err)
	}

	s.logger.Debug("dataset saved", "path", rel, "rows", len(ds.Rows))
	return rel, nil
}
