package policy

import (
	"errors"
	"time"
)

var (
	// ErrUnknownAction is returned by [Registry.Lookup] for actions that were never registered.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidPolicy is returned when a policy fails validation.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// Policy is the immutable rule set for one action class.
//
// MaxAttempts attempts are allowed per Window. The attempt after that is
// denied and blocks the pair for BlockDuration. A zero BlockDuration means
// twice the Window.
type Policy struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	Window        time.Duration `yaml:"window"`
	BlockDuration time.Duration `yaml:"block_duration"`
}

// Validate reports whether p can drive a limiter.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts <= 0:
		return errors.Join(ErrInvalidPolicy, errors.New("max attempts must be > 0"))
	case p.Window < time.Millisecond:
		return errors.Join(ErrInvalidPolicy, errors.New("window must be at least 1ms"))
	case p.BlockDuration < 0:
		return errors.Join(ErrInvalidPolicy, errors.New("block duration must be >= 0"))
	case p.BlockDuration > 0 && p.BlockDuration < time.Millisecond:
		return errors.Join(ErrInvalidPolicy, errors.New("block duration must be 0 or at least 1ms"))
	}
	return nil
}

// Normalize returns p with the default block duration filled in.
func (p Policy) Normalize() Policy {
	if p.BlockDuration == 0 {
		p.BlockDuration = 2 * p.Window
	}
	return p
}

// WindowMillis returns the window in epoch-millisecond units.
func (p Policy) WindowMillis() int64 { return p.Window.Milliseconds() }

// BlockMillis returns the block duration in epoch-millisecond units.
func (p Policy) BlockMillis() int64 { return p.BlockDuration.Milliseconds() }
