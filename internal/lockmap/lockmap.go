// Package lockmap provides per-key mutual exclusion over a fixed set of
// striped mutexes.
package lockmap

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultStripes is the stripe count used when none is given.
const DefaultStripes = 256

// Map hands out a mutex per key. Distinct keys may share a stripe, so a
// holder must never take a second key's lock while holding one.
type Map struct {
	stripes []sync.Mutex
}

// New creates a map with n stripes.
func New(n int) *Map {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Map{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe for key and returns its unlock function.
func (m *Map) Lock(key string) func() {
	mu := m.stripe(key)
	mu.Lock()
	return mu.Unlock
}

// LockID is Lock for integer ids.
func (m *Map) LockID(id int64) func() {
	return m.Lock(strconv.FormatInt(id, 10))
}

func (m *Map) stripe(key string) *sync.Mutex {
	return &m.stripes[xxhash.Sum64String(key)%uint64(len(m.stripes))]
}
