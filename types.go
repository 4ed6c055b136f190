package goThrottle

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the answer to one [Engine.CheckAndRecord] call.
type Decision struct {
	Allowed           bool
	RemainingAttempts int
	// ResetAt is when a denial lifts. Zero for allowed decisions and for
	// denials caused by a store failure.
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait at now, or zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetAt.IsZero() {
		return 0
	}
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// RetryMessage renders a "try again in N minutes" hint, or "" when allowed.
func (d Decision) RetryMessage(now time.Time) string {
	if d.Allowed {
		return ""
	}
	if d.ResetAt.IsZero() {
		return "try again later"
	}
	return "try again in " + FormatDuration(d.RetryAfter(now))
}

// Status is a read-only view of one (action, identifier) pair.
type Status struct {
	Action     string
	Identifier string
	// Attempts counted in the current window; zero without a live entry.
	Attempts int
	// RemainingAttempts and Allowed describe the next CheckAndRecord call.
	RemainingAttempts int
	Allowed           bool
	Blocked           bool
	// ResetAt is when a denial lifts; zero when Allowed.
	ResetAt time.Time
	// WindowEndsAt is the end of the current counting window; zero without a live entry.
	WindowEndsAt time.Time
}

// Decision projects the status onto the CheckAndRecord result shape.
func (s Status) Decision() Decision {
	return Decision{Allowed: s.Allowed, RemainingAttempts: s.RemainingAttempts, ResetAt: s.ResetAt}
}

// ReadFailureMode selects how a failed store read is treated.
type ReadFailureMode int

const (
	// FailOpen treats a failed read as "no entry" and overwrites the stored
	// value with a fresh one. This favors availability.
	FailOpen ReadFailureMode = iota
	// FailClosed denies the attempt and returns [ErrStoreUnavailable].
	FailClosed
)

func (m ReadFailureMode) String() string {
	switch m {
	case FailOpen:
		return "fail-open"
	case FailClosed:
		return "fail-closed"
	default:
		return fmt.Sprintf("ReadFailureMode(%d)", int(m))
	}
}

// ParseReadFailureMode accepts "fail-open" or "fail-closed".
func ParseReadFailureMode(s string) (ReadFailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-open", "open":
		return FailOpen, nil
	case "fail-closed", "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("%w: unknown read failure mode %q", ErrConfiguration, s)
	}
}

// UnmarshalText lets YAML and flag parsers decode the mode by name.
func (m *ReadFailureMode) UnmarshalText(text []byte) error {
	parsed, err := ParseReadFailureMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText renders the mode by name.
func (m ReadFailureMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
