package goThrottle

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an unknown action or an invalid engine configuration.
	ErrConfiguration = errors.New("throttle configuration error")
	// ErrPersistence reports that a decision could not be durably recorded.
	// The accompanying Decision is always a denial.
	ErrPersistence = errors.New("throttle state could not be persisted")
	// ErrStoreUnavailable reports a failed read under [FailClosed].
	ErrStoreUnavailable = errors.New("throttle store unavailable")
	// ErrInvalidIdentifier reports an empty identifier.
	ErrInvalidIdentifier = errors.New("invalid throttle identifier")
	// ErrEngineClosed is returned by operations on a closed Engine.
	ErrEngineClosed = errors.New("throttle engine closed")
)

// wrapConfiguration keeps the cause matchable, e.g. policy.ErrUnknownAction.
func wrapConfiguration(err error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

func wrapPersistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
