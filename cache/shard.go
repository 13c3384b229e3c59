package cache

import (
	"sync"

	"github.com/tridemax/CART/internal/util"
)

// shard is one partition of the resident index. It maps keys to clock
// entries; the replacement state itself (queues, p/q/nS/nL) is global and
// lives on the Cache under the policy mutex.
//
// Locking discipline: readers pin values under the shard read lock, writers
// (install/evict) hold the shard write lock while already holding the policy
// mutex. The shard never takes the policy mutex. Because an entry leaves the
// map under the write lock and the cache's own reference is dropped only
// after that, a reader that found the entry always increments a pin count
// that is still >= 1.
type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*entry[K, V]

	// hot counters on their own cache lines
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
}

// pin looks up key and, on success, pins its value and returns a handle.
// mark controls whether the reference bit is set (Lookup) or left untouched
// (Peek).
func (s *shard[K, V]) pin(c *Cache[K, V], key K, mark bool) (Handle[K, V], bool) {
	s.mu.RLock()
	e, ok := s.m[key]
	if !ok {
		s.mu.RUnlock()
		return Handle[K, V]{}, false
	}
	if mark {
		e.ref.Store(true)
	}
	vr := e.val
	vr.uses.Add(1)
	s.mu.RUnlock()
	return Handle[K, V]{c: c, vr: vr}, true
}

// put indexes a resident entry. Called under the policy mutex.
func (s *shard[K, V]) put(key K, e *entry[K, V]) {
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
}

// drop unindexes key. Called under the policy mutex, before the cache's
// reference on the value is released.
func (s *shard[K, V]) drop(key K) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}
