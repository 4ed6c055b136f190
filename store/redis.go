package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultScanCount = 256

var errSwapMismatch = errors.New("swap precondition failed")

// RedisOptions tunes the Redis store.
type RedisOptions struct {
	// ScanCount is the COUNT hint passed to SCAN by ListKeys.
	ScanCount int64
}

// Redis is a [Store] and [Swapper] over go-redis. Conditional writes use
// WATCH/MULTI; a concurrent modification of the watched key reports a
// failed swap rather than an error.
type Redis struct {
	client    redis.UniversalClient
	scanCount int64
}

// NewRedis wraps client. Cluster clients are scanned shard by shard.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.ScanCount <= 0 {
		opts.ScanCount = defaultScanCount
	}
	return &Redis{
		client:    client,
		scanCount: opts.ScanCount,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"

	if cluster, ok := r.client.(*redis.ClusterClient); ok {
		var (
			mu   sync.Mutex
			keys []string
		)
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, shard *redis.Client) error {
			shardKeys, err := scanKeys(ctx, shard, pattern, r.scanCount)
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, shardKeys...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return keys, nil
	}

	keys, err := scanKeys(ctx, r.client, pattern, r.scanCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	return r.conditional(ctx, key, old, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, next, ttl)
	})
}

func (r *Redis) CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error) {
	if old == nil {
		return false, nil
	}
	return r.conditional(ctx, key, old, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
	})
}

func (r *Redis) conditional(ctx context.Context, key string, old []byte, write func(redis.Pipeliner)) (bool, error) {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		found := true
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return err
			}
			found = false
		}

		if !matches(current, found, old) {
			return errSwapMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, errSwapMismatch):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

func scanKeys(ctx context.Context, client scanner, pattern string, count int64) ([]string, error) {
	var keys []string
	iter := client.Scan(ctx, 0, pattern, count).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
