package blobstore

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/redis"
)

// bytesKV is the subset of *redis.Client the store needs.
type bytesKV interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisStore keeps blobs as plain Redis string values, which lets several
// search replicas share one copy. SET replaces the value atomically.
type RedisStore struct {
	kv     bytesKV
	prefix string
}

func NewRedisStore(kv bytesKV, prefix string) *RedisStore {
	return &RedisStore{kv: kv, prefix: prefix}
}

func (s *RedisStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := s.kv.Set(ctx, s.prefix+key, blob, 0); err != nil {
		return fmt.Errorf("storing blob %s in redis: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.kv.GetBytes(ctx, s.prefix+key)
	if err != nil {
		if redis.IsNilError(err) {
			return nil, fmt.Errorf("blob %s: %w", key, apperrors.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("fetching blob %s from redis: %w", key, err)
	}
	return blob, nil
}
