package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound reports that a key holds no live value.
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is keyed byte storage. A zero ttl on Set means the value does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Swapper is implemented by stores that can make a conditional write
// against the value previously read.
//
// CompareAndSwap writes next only if the key currently holds old; a nil
// old means the key must be absent. CompareAndDelete removes the key only
// if it currently holds old. Both report false, with a nil error, when the
// condition does not hold.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error)
}

// Purger is implemented by stores whose expired values occupy space until
// removed explicitly.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
