// Package file persists the seen-id set as a JSON document on local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
	"github.com/JakeFAU/stockwatch-monitor/internal/seenstore"
)

// Store implements monitor.SeenStore on a single file. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash leaves either the old or the new document.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a Store for path.
func New(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored set. A missing file yields an empty set and no
// error; a malformed one returns an error wrapping seenstore.ErrCorrupt.
func (s *Store) Read(_ context.Context) (*monitor.SeenSet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return monitor.NewSeenSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seen file: %w", err)
	}
	seen, err := seenstore.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return seen, nil
}

// Load implements monitor.SeenStore. Failures are logged and degrade to an
// empty set.
func (s *Store) Load(ctx context.Context) *monitor.SeenSet {
	seen, err := s.Read(ctx)
	if err != nil {
		s.logger.Warn("could not load seen ids, starting empty", zap.String("path", s.path), zap.Error(err))
		return monitor.NewSeenSet()
	}
	return seen
}

// Save writes the whole set atomically.
func (s *Store) Save(_ context.Context, seen *monitor.SeenSet) error {
	data, err := seenstore.Encode(seen)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace seen file: %w", err)
	}
	return nil
}

// Count returns the number of stored ids, or zero when unreadable.
func (s *Store) Count(ctx context.Context) int {
	return s.Load(ctx).Len()
}
