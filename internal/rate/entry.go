package rate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is the persisted state for one (action, identifier) pair.
// Timestamps are epoch milliseconds.
type Entry struct {
	Attempts     int    `json:"attempts"`
	FirstAttempt int64  `json:"firstAttempt"`
	LastAttempt  int64  `json:"lastAttempt"`
	BlockedUntil *int64 `json:"blockedUntil,omitempty"`
}

// NewEntry returns the entry recorded by a first attempt at now.
func NewEntry(now int64) *Entry {
	return &Entry{Attempts: 1, FirstAttempt: now, LastAttempt: now}
}

// Blocked reports whether the entry denies every check at now.
func (e *Entry) Blocked(now int64) bool {
	return e.BlockedUntil != nil && now < *e.BlockedUntil
}

// WindowElapsed reports whether now lies past the counting window.
func (e *Entry) WindowElapsed(now int64, r Rules) bool {
	return now-e.FirstAttempt > r.WindowMs
}

// Expired reports whether the entry is safe to delete: its window has
// elapsed and any block has ended.
func (e *Entry) Expired(now int64, r Rules) bool {
	if !e.WindowElapsed(now, r) {
		return false
	}
	return e.BlockedUntil == nil || now > *e.BlockedUntil
}

// ExpiresAt returns the first instant at which [Entry.Expired] holds.
func (e *Entry) ExpiresAt(r Rules) int64 {
	at := e.FirstAttempt + r.WindowMs + 1
	if e.BlockedUntil != nil && *e.BlockedUntil+1 > at {
		at = *e.BlockedUntil + 1
	}
	return at
}

// TTL returns how long a store should retain the entry written at now.
func (e *Entry) TTL(now int64, r Rules) time.Duration {
	ms := e.ExpiresAt(r) - now
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Entry) clone() *Entry {
	out := *e
	if e.BlockedUntil != nil {
		until := *e.BlockedUntil
		out.BlockedUntil = &until
	}
	return &out
}

// Encode serializes the entry as JSON.
func Encode(e *Entry) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses a stored value. Any malformed or invariant-breaking value
// yields [ErrCorruptEntry].
func Decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Entry) validate() error {
	switch {
	case e.Attempts < 1:
		return fmt.Errorf("%w: attempts %d < 1", ErrCorruptEntry, e.Attempts)
	case e.FirstAttempt > e.LastAttempt:
		return fmt.Errorf("%w: first attempt after last attempt", ErrCorruptEntry)
	}
	return nil
}
