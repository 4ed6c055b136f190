package rate

import (
	"strings"

	"github.com/MrEthical07/goThrottle/policy"
)

// Rules is a policy expressed in milliseconds.
type Rules struct {
	MaxAttempts int
	WindowMs    int64
	BlockMs     int64
}

// RulesFor converts a normalized policy.
func RulesFor(p policy.Policy) Rules {
	p = p.Normalize()
	return Rules{
		MaxAttempts: p.MaxAttempts,
		WindowMs:    p.WindowMillis(),
		BlockMs:     p.BlockMillis(),
	}
}

// Outcome is the result of evaluating an entry.
type Outcome struct {
	Allowed   bool
	Remaining int
	// ResetAt is the epoch-ms instant the denial lifts; zero when allowed.
	ResetAt int64
	// Attempts counted in the current window after evaluation.
	Attempts int
	// Blocked is true while a block is active after evaluation.
	Blocked bool
	// BlockStarted is true when this evaluation set BlockedUntil.
	BlockStarted bool
	// WindowEndsAt is the last epoch-ms instant of the current window; zero without an entry.
	WindowEndsAt int64
}

// Record evaluates one attempt at now against the stored entry (nil when
// absent). It returns the outcome and the entry to persist; a nil entry
// means nothing must be written.
func Record(current *Entry, r Rules, now int64) (Outcome, *Entry) {
	if current == nil {
		return fresh(r, now)
	}

	if current.Blocked(now) {
		return Outcome{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      *current.BlockedUntil,
			Attempts:     current.Attempts,
			Blocked:      true,
			WindowEndsAt: current.FirstAttempt + r.WindowMs,
		}, nil
	}

	if current.WindowElapsed(now, r) {
		return fresh(r, now)
	}

	next := current.clone()
	if next.Attempts < r.MaxAttempts {
		next.Attempts++
		next.LastAttempt = now
		return Outcome{
			Allowed:      true,
			Remaining:    r.MaxAttempts - next.Attempts,
			Attempts:     next.Attempts,
			WindowEndsAt: next.FirstAttempt + r.WindowMs,
		}, next
	}

	until := now + r.BlockMs
	next.BlockedUntil = &until
	return Outcome{
		Allowed:      false,
		Remaining:    0,
		ResetAt:      until,
		Attempts:     next.Attempts,
		Blocked:      true,
		BlockStarted: true,
		WindowEndsAt: next.FirstAttempt + r.WindowMs,
	}, next
}

// Peek reports what the stored entry means at now without recording an
// attempt. Allowed and Remaining describe the next call.
func Peek(current *Entry, r Rules, now int64) Outcome {
	if current == nil || (!current.Blocked(now) && current.WindowElapsed(now, r)) {
		return Outcome{Allowed: true, Remaining: r.MaxAttempts}
	}

	windowEnd := current.FirstAttempt + r.WindowMs
	if current.Blocked(now) {
		return Outcome{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      *current.BlockedUntil,
			Attempts:     current.Attempts,
			Blocked:      true,
			WindowEndsAt: windowEnd,
		}
	}

	remaining := r.MaxAttempts - current.Attempts
	if remaining <= 0 {
		// The counter is exhausted; the pair frees up once the window
		// ends unless another attempt triggers a block first.
		return Outcome{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      windowEnd + 1,
			Attempts:     current.Attempts,
			WindowEndsAt: windowEnd,
		}
	}

	return Outcome{
		Allowed:      true,
		Remaining:    remaining,
		Attempts:     current.Attempts,
		WindowEndsAt: windowEnd,
	}
}

func fresh(r Rules, now int64) (Outcome, *Entry) {
	return Outcome{
		Allowed:      true,
		Remaining:    r.MaxAttempts - 1,
		Attempts:     1,
		WindowEndsAt: now + r.WindowMs,
	}, NewEntry(now)
}

// Key returns the store key for an (action, identifier) pair.
func Key(namespace, action, identifier string) string {
	var b strings.Builder
	b.Grow(len(namespace) + len(action) + len(identifier) + 2)
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(action)
	b.WriteByte(':')
	b.WriteString(identifier)
	return b.String()
}

// Prefix returns the key prefix shared by every entry in namespace.
func Prefix(namespace string) string {
	return namespace + ":"
}

// ParseKey splits a key produced by [Key]. Identifiers may contain ':';
// namespaces and actions may not.
func ParseKey(namespace, key string) (action, identifier string, ok bool) {
	rest, found := strings.CutPrefix(key, Prefix(namespace))
	if !found {
		return "", "", false
	}
	action, identifier, found = strings.Cut(rest, ":")
	if !found || action == "" {
		return "", "", false
	}
	return action, identifier, true
}
