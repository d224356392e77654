// Package blobstore moves the serialized index between the indexer and the
// search service. A store holds whole blobs under a key; readers either see
// the previous blob or the new one, never a partial write.
package blobstore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/redis"
)

const redisKeyPrefix = "article-search:blob:"

type Store interface {
	Put(ctx context.Context, key string, blob []byte) error
	// Get returns an error matching errors.ErrBlobNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Open returns the store selected by cfg.Store. rdb may be nil unless the
// redis store is configured.
func Open(cfg config.IndexerConfig, rdb *redis.Client) (Store, error) {
	switch cfg.Store {
	case config.StoreFile:
		return NewFileStore(cfg.DataDir)
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis blob store configured but redis is disabled")
		}
		return NewRedisStore(rdb, redisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown blob store %q", cfg.Store)
	}
}

// FileStore keeps each blob as a file in one directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid blob key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Put writes to a temporary file, syncs it and renames it over the old blob.
func (s *FileStore) Put(ctx context.Context, key string, blob []byte) error {
	finalPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp blob file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	if _, err := f.Write(blob); err != nil {
		f.Close()
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing blob file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing blob file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming blob file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", key, apperrors.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return blob, nil
}
