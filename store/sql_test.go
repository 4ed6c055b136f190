package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/goThrottle/clock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestSQL(t *testing.T, c clock.Clock) *SQL {
	t.Helper()

	dsn := fmt.Sprintf("file:throttle-store-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s, err := NewSQL(db, c)
	require.NoError(t, err)
	return s
}

func TestSQLContract(t *testing.T) {
	c := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	runContract(t, newTestSQL(t, c), func(d time.Duration) { c.Advance(d) })
}

func TestSQLPurgeExpired(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	s := newTestSQL(t, c)

	require.NoError(t, s.Set(ctx, "ns:login:a", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "ns:login:b", []byte("b"), time.Hour))
	require.NoError(t, s.Set(ctx, "ns:login:c", []byte("c"), 0))

	c.Advance(2 * time.Minute)

	removed, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, s.db.Model(&throttleRecord{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

// Two writers can both see an absent key before either inserts. The later
// insert must lose instead of overwriting the earlier one.
func TestSQLInsertAbsentLosesToConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	s := newTestSQL(t, c)
	db := s.db.WithContext(ctx)

	ok, err := s.insertAbsent(db, "ns:login:race", []byte("first"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.insertAbsent(db, "ns:login:race", []byte("second"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, "ns:login:race")
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	c.Advance(2 * time.Minute)
	ok, err = s.insertAbsent(db, "ns:login:race", []byte("third"), 0)
	require.NoError(t, err)
	require.True(t, ok, "an expired row must be replaced")

	got, err = s.Get(ctx, "ns:login:race")
	require.NoError(t, err)
	require.Equal(t, "third", string(got))
}

func TestSQLListKeysEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s := newTestSQL(t, nil)

	require.NoError(t, s.Set(ctx, "a_b:login:1", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "axb:login:2", []byte("2"), 0))

	keys, err := s.ListKeys(ctx, "a_b:")
	require.NoError(t, err)
	require.Equal(t, []string{"a_b:login:1"}, keys)
}

func TestNewSQLRejectsNilDB(t *testing.T) {
	_, err := NewSQL(nil, nil)
	require.Error(t, err)
}

func TestSQLClosedDatabaseIsUnavailable(t *testing.T) {
	s := newTestSQL(t, nil)
	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = s.Get(context.Background(), "k")
	require.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
}
