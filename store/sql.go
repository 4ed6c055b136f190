package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goThrottle/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// throttleRecord is one row of the throttle_entries table. ExpiresAt is
// epoch milliseconds; zero means the row does not expire.
type throttleRecord struct {
	Key       string `gorm:"column:entry_key;primaryKey;size:512"`
	Value     []byte `gorm:"column:value"`
	ExpiresAt int64  `gorm:"column:expires_at;index"`
	UpdatedAt time.Time
}

func (throttleRecord) TableName() string { return "throttle_entries" }

func (r throttleRecord) live(now time.Time) bool {
	return r.ExpiresAt == 0 || now.UnixMilli() < r.ExpiresAt
}

// SQL is a [Store] and [Swapper] over a gorm database. Conditional writes
// run inside a transaction and take a row lock where the dialect has one.
type SQL struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewSQL migrates the throttle_entries table and returns the store. A nil
// clock uses the system clock.
func NewSQL(db *gorm.DB, c clock.Clock) (*SQL, error) {
	if db == nil {
		return nil, errors.New("nil database")
	}
	if c == nil {
		c = clock.System{}
	}
	if err := db.AutoMigrate(&throttleRecord{}); err != nil {
		return nil, fmt.Errorf("migrate throttle_entries: %w", err)
	}
	return &SQL{db: db, clock: c}, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	rec, found, err := s.load(s.db.WithContext(ctx), key, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return rec.Value, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.upsert(s.db.WithContext(ctx), key, value, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&throttleRecord{}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQL) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&throttleRecord{}).
		Where("entry_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Where("expires_at = 0 OR expires_at > ?", s.clock.Now().UnixMilli()).
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}

func (s *SQL) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	swapped := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, found, err := s.load(tx, key, true)
		if err != nil {
			return err
		}
		if !matches(rec.Value, found, old) {
			return nil
		}
		if old == nil {
			// No row to lock: the insert itself must lose to a concurrent writer.
			swapped, err = s.insertAbsent(tx, key, next, ttl)
			return err
		}
		if err := s.upsert(tx, key, next, ttl); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return swapped, nil
}

func (s *SQL) CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, found, err := s.load(tx, key, true)
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(rec.Value, old) {
			return nil
		}
		if err := tx.Where("entry_key = ?", key).Delete(&throttleRecord{}).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted, nil
}

func (s *SQL) load(db *gorm.DB, key string, lock bool) (throttleRecord, bool, error) {
	if lock && db.Dialector.Name() != "sqlite" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rec throttleRecord
	err := db.Where("entry_key = ?", key).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return throttleRecord{}, false, nil
		}
		return throttleRecord{}, false, err
	}
	if !rec.live(s.clock.Now()) {
		return throttleRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *SQL) record(key string, value []byte, ttl time.Duration) throttleRecord {
	now := s.clock.Now()
	rec := throttleRecord{
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl).UnixMilli()
	}
	return rec
}

// insertAbsent writes key only if no live row holds it. An expired row is
// replaced; a live row leaves the insert without effect.
func (s *SQL) insertAbsent(db *gorm.DB, key string, value []byte, ttl time.Duration) (bool, error) {
	rec := s.record(key, value, ttl)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL:  "throttle_entries.expires_at <> 0 AND throttle_entries.expires_at <= ?",
			Vars: []any{s.clock.Now().UnixMilli()},
		}}},
	}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQL) upsert(db *gorm.DB, key string, value []byte, ttl time.Duration) error {
	rec := s.record(key, value, ttl)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&rec).Error
}

// PurgeExpired deletes rows whose TTL has elapsed and returns how many were removed.
func (s *SQL) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <> 0 AND expires_at <= ?", s.clock.Now().UnixMilli()).
		Delete(&throttleRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
