package rate

import "errors"

// ErrCorruptEntry reports a stored value that does not decode to a valid Entry.
var ErrCorruptEntry = errors.New("corrupt throttle entry")
