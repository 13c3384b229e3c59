package cache

import (
	"container/list"
	"sync/atomic"
)

// Queue tags for entry.where. An entry is resident while on T1/T2 and a
// ghost (no value) while on B1/B2.
const (
	onT1 = iota
	onT2
	onB1
	onB2
)

// entry is a node on one of the four CART queues. List position, filter bit
// and queue tag are guarded by the policy mutex. The reference bit is the one
// field written outside it: the hit path sets it to true with an atomic store
// while the sweep reads and clears it under the mutex. A lost set just defers
// one eviction by a sweep.
type entry[K comparable, V any] struct {
	key K

	ref  atomic.Bool   // reference bit, set on hit
	long bool          // filter bit: false = Short, true = Long

	where int8          // onT1..onB2
	elem  *list.Element // position in the queue named by where

	// val is the pin holder for the resident value; nil while the entry is
	// a ghost. Swapped only under the policy mutex while the key is not
	// readable from the resident index.
	val *valueRef[K, V]
}

// valueRef carries one loaded value and its pin count. uses accounts the
// cache's own reference (1 while resident) plus one per live Handle, so it
// can outlive the entry: a value evicted while pinned is released by the last
// Handle instead of the sweep.
type valueRef[K comparable, V any] struct {
	key  K
	val  *V
	uses atomic.Int32
}

func newValueRef[K comparable, V any](key K, v *V) *valueRef[K, V] {
	vr := &valueRef[K, V]{key: key, val: v}
	vr.uses.Store(1) // the cache's reference
	return vr
}
