// Package gcs keeps the seen-id document in a Google Cloud Storage object, for
// deployments without a persistent local disk.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
	"github.com/JakeFAU/stockwatch-monitor/internal/seenstore"
)

// Config captures the object location.
type Config struct {
	Bucket string
	Object string
}

// Store implements monitor.SeenStore on a single GCS object.
type Store struct {
	client *storage.Client
	bucket string
	object string
	logger *zap.Logger
}

// New creates a GCS-backed seen store.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Object == "" {
		cfg.Object = "seen_updates.json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
		logger: logger,
	}, nil
}

// URI returns the gs:// location of the document.
func (s *Store) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

func (s *Store) handle() *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.object)
}

// Read downloads and decodes the document. A missing object is an empty set.
func (s *Store) Read(ctx context.Context) (*monitor.SeenSet, error) {
	reader, err := s.handle().NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return monitor.NewSeenSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	seen, err := seenstore.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.URI(), err)
	}
	return seen, nil
}

// Load implements monitor.SeenStore. Failures are logged and degrade to an
// empty set.
func (s *Store) Load(ctx context.Context) *monitor.SeenSet {
	seen, err := s.Read(ctx)
	if err != nil {
		s.logger.Warn("could not load seen ids, starting empty", zap.String("uri", s.URI()), zap.Error(err))
		return monitor.NewSeenSet()
	}
	return seen
}

// Save uploads the whole document in a single request, so the object is
// replaced atomically.
func (s *Store) Save(ctx context.Context, seen *monitor.SeenSet) error {
	data, err := seenstore.Encode(seen)
	if err != nil {
		return err
	}
	writer := s.handle().NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.ChunkSize = 0
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Count returns the number of stored ids, or zero when unreadable.
func (s *Store) Count(ctx context.Context) int {
	return s.Load(ctx).Len()
}
