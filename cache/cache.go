package cache

import (
	"container/list"
	"errors"
	"runtime"
	"sync"

	"github.com/tridemax/CART/internal/flight"
	"github.com/tridemax/CART/internal/util"
)

// ErrNilValue is returned when the loader hands back a nil value with a nil
// error, or when a nil value is passed to Insert.
var ErrNilValue = errors.New("cache: nil value")

// Cache is a concurrent, bounded key-to-value cache with CART replacement
// (Clock with Adaptive Replacement and Temporal filtering). All methods are
// safe for concurrent use by multiple goroutines.
//
// Values are handed out as pinned Handles; a pinned value is never released
// back to the loader, so both limits are soft while pins are outstanding.
type Cache[K comparable, V any] struct {
	opt    Options[K, V]
	shards []*shard[K, V]
	hash   func(K) uint64

	// flights deduplicate concurrent misses per key: the leader loads and
	// installs, followers wait and then re-pin from the index.
	flights flight.Group[K]

	// ---- replacement state, guarded by mu ----
	mu     sync.Mutex
	t1, t2 *list.List // resident clock queues, front = clock hand
	b1, b2 *list.List // ghost queues, front = most recently demoted
	ghosts map[K]*entry[K, V]
	p, q   int // adaptive targets for |T1| and |B1|
	ns, nl int // Short/Long counts across T1+T2

	usedMemory util.PaddedAtomicInt64
}

// New constructs a cache. It panics when no Loader is supplied or when both
// MaxElements and MaxMemory are zero.
func New[K comparable, V any](opt Options[K, V]) *Cache[K, V] {
	if opt.Loader == nil {
		panic("cache: Loader is required")
	}
	if opt.MaxElements <= 0 && opt.MaxMemory <= 0 {
		panic("cache: at least one of MaxElements/MaxMemory must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}
	shards := make([]*shard[K, V], sh)
	for i := range shards {
		shards[i] = &shard[K, V]{m: make(map[K]*entry[K, V])}
	}

	return &Cache[K, V]{
		opt:    opt,
		shards: shards,
		hash:   util.Hash64[K],
		t1:     list.New(),
		t2:     list.New(),
		b1:     list.New(),
		b2:     list.New(),
		ghosts: make(map[K]*entry[K, V]),
	}
}

// Lookup returns a handle for key, loading the value on miss. Concurrent
// misses for the same key invoke the loader once; every caller gets its own
// pin on the installed value. Loader errors propagate with the cache
// unchanged. The caller must Release the handle.
func (c *Cache[K, V]) Lookup(key K) (Handle[K, V], error) {
	for {
		sh := c.shardFor(key)
		if h, ok := sh.pin(c, key, true); ok {
			sh.hits.Add(1)
			c.opt.Metrics.Hit()
			return h, nil
		}
		h, done, err := c.missFlight(key, nil)
		if err != nil {
			return Handle[K, V]{}, err
		}
		if done {
			return h, nil
		}
		// Lost the flight; the winner's entry is (usually) indexed now.
	}
}

// Peek returns a handle if key is resident and an empty handle otherwise.
// It does not set the reference bit and never loads.
func (c *Cache[K, V]) Peek(key K) Handle[K, V] {
	h, _ := c.shardFor(key).pin(c, key, false)
	return h
}

// Insert installs the supplied value under key, without updating an existing
// entry. If the key is already resident (or a concurrent miss won the race)
// the existing value's handle is returned instead; compare h.Value() against
// value to detect that, and dispose of the rejected value yourself — the
// cache takes ownership only of values it actually installs.
func (c *Cache[K, V]) Insert(key K, value *V) (Handle[K, V], error) {
	if value == nil {
		return Handle[K, V]{}, ErrNilValue
	}
	for {
		if h, ok := c.shardFor(key).pin(c, key, true); ok {
			return h, nil
		}
		h, done, err := c.missFlight(key, value)
		if err != nil {
			return Handle[K, V]{}, err
		}
		if done {
			return h, nil
		}
	}
}

// missFlight runs the per-key miss slot. The leader acquires the value
// (unless supplied), applies the CART insertion and returns its own handle
// with done=true. Followers block until the leader finishes and return
// done=false so the caller re-reads the index.
func (c *Cache[K, V]) missFlight(key K, supplied *V) (h Handle[K, V], done bool, err error) {
	leader, err := c.flights.Do(key, func() error {
		// Another flight may have installed the key between our index miss
		// and winning the slot.
		if hh, ok := c.shardFor(key).pin(c, key, true); ok {
			h = hh
			return nil
		}

		v := supplied
		if v == nil {
			var aerr error
			v, aerr = c.opt.Loader.Acquire(key)
			if aerr != nil {
				return aerr
			}
			if v == nil {
				return ErrNilValue
			}
		}

		c.shardFor(key).misses.Add(1)
		c.opt.Metrics.Miss()

		vr := newValueRef(key, v)
		// Take the caller's pin before the value is visible to the policy,
		// so a concurrent insertion cannot demote the fresh entry and
		// release the value underneath us.
		vr.uses.Add(1)
		h = Handle[K, V]{c: c, vr: vr}

		c.mu.Lock()
		c.applyInsert(key, vr)
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return Handle[K, V]{}, false, err
	}
	return h, leader, nil
}

// Remove purges key unconditionally, without leaving a ghost. The caller
// asserts the key is no longer needed; outstanding handles stay valid and
// defer the loader release until they drop. No-op when key is not resident.
func (c *Cache[K, V]) Remove(key K) {
	sh := c.shardFor(key)

	c.mu.Lock()
	sh.mu.Lock()
	e, ok := sh.m[key]
	if !ok {
		sh.mu.Unlock()
		c.mu.Unlock()
		return
	}
	delete(sh.m, key)
	sh.mu.Unlock()

	c.unlink(e)
	vr := e.val
	e.val = nil
	c.usedMemory.Add(-c.opt.Loader.SizeOf(vr.val))
	c.opt.Metrics.Evict(EvictRemoved)
	if cb := c.opt.OnEvict; cb != nil {
		cb(key, vr.val, EvictRemoved)
	}
	c.reportSize()
	c.mu.Unlock()

	c.decRef(vr)
}

// Clear drops every resident and ghost entry and resets the adaptive state.
// For each resident value it waits until outstanding handles drain, then
// releases it through the loader. Entries installed concurrently with Clear
// survive.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	var victims []*valueRef[K, V]
	for _, q := range []*list.List{c.t1, c.t2} {
		for el := q.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry[K, V])
			c.shardFor(e.key).drop(e.key)
			vr := e.val
			e.val = nil
			victims = append(victims, vr)
			if cb := c.opt.OnEvict; cb != nil {
				cb(e.key, vr.val, EvictClear)
			}
			c.opt.Metrics.Evict(EvictClear)
		}
	}
	c.t1.Init()
	c.t2.Init()
	c.b1.Init()
	c.b2.Init()
	c.ghosts = make(map[K]*entry[K, V])
	c.p, c.q, c.ns, c.nl = 0, 0, 0, 0
	c.usedMemory.Store(0)
	c.reportSize()
	c.mu.Unlock()

	for _, vr := range victims {
		c.drainAndRelease(vr)
	}
}

// Stats is a point-in-time snapshot of the cache state.
type Stats struct {
	Resident   int // |T1| + |T2|
	T1, T2     int
	B1, B2     int
	P, Q       int
	NS, NL     int
	UsedMemory int64
	Hits       int64
	Misses     int64
}

// Stats reports queue sizes, the adaptive targets and hit/miss totals.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	st := Stats{
		Resident:   c.t1.Len() + c.t2.Len(),
		T1:         c.t1.Len(),
		T2:         c.t2.Len(),
		B1:         c.b1.Len(),
		B2:         c.b2.Len(),
		P:          c.p,
		Q:          c.q,
		NS:         c.ns,
		NL:         c.nl,
		UsedMemory: c.usedMemory.Load(),
	}
	c.mu.Unlock()
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
	}
	return st
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t1.Len() + c.t2.Len()
}

// ---- internals ----

func (c *Cache[K, V]) shardFor(key K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.hash(key), len(c.shards))]
}

// decRef drops one reference; the last one returns the value to the loader.
func (c *Cache[K, V]) decRef(vr *valueRef[K, V]) {
	if n := vr.uses.Add(-1); n == 0 {
		c.opt.Loader.Release(vr.key, vr.val)
	} else if n < 0 {
		// Double release is a programmer error; restore and carry on.
		vr.uses.Add(1)
	}
}

// drainAndRelease spins until the cache's reference is the only one left,
// then drops it. Bounded spin, then cooperative yield.
func (c *Cache[K, V]) drainAndRelease(vr *valueRef[K, V]) {
	const maxSpinTries = 100
	for tries := 0; vr.uses.Load() > 1; tries++ {
		if tries >= maxSpinTries {
			runtime.Gosched()
		}
	}
	c.decRef(vr)
}

func (c *Cache[K, V]) reportSize() {
	c.opt.Metrics.Size(c.t1.Len()+c.t2.Len(), c.usedMemory.Load())
}
