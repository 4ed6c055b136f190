package rate

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// Locks serializes work on the same key inside one process. Distinct keys
// may share a stripe.
type Locks struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe for key and returns its unlock func.
func (l *Locks) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%lockStripes]
	m.Lock()
	return m.Unlock
}
