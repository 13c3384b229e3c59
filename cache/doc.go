// Package cache provides a concurrent, bounded, in-memory key/value cache
// with CART replacement (Clock with Adaptive Replacement and Temporal
// filtering) and pinned value handles.
//
// CART keeps two resident clock queues and two ghost queues:
//
//   - T1 holds recently admitted entries, T2 entries re-referenced while
//     resident. Each resident entry carries a reference bit (set on hit,
//     cleared by the sweep) and a filter bit tagging it as a transient
//     (Short) or persistent (Long) working-set member.
//   - B1 and B2 remember keys recently demoted from T1 and T2. A miss whose
//     key is still in history re-enters as Long and adapts the target size p
//     of T1, balancing recency against frequency per workload.
//
// On mixed workloads this typically beats plain LRU at a comparable
// per-access cost; see cmd/bench for a side-by-side miss-ratio comparison.
// The paper: http://usenix.org/legacy/publications/library/proceedings/fast04/tech/full_papers/bansal/bansal.pdf
//
// # Handles
//
// Values come from a Loader and are handed out as pinned Handles. A pinned
// value is never passed back to Loader.Release, even if the replacement
// sweep evicted its entry meanwhile; the last handle to drop performs the
// release. Because of that both capacity limits are soft: when every
// candidate is pinned the cache grows past its nominal size and catches up
// once pins drop.
//
// # Concurrency
//
// The resident index is sharded; hits pin under a shard read lock and touch
// no replacement state besides an atomic reference-bit store. All queue and
// target mutations happen under one policy mutex, held for the duration of a
// single insertion or removal. Concurrent misses for the same key are
// coalesced: one loader call, every caller gets its own pin.
//
// # Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    Loader:      myLoader,   // Acquire/Release/SizeOf
//	    MaxElements: 10_000,
//	})
//	h, err := c.Lookup("a")
//	if err != nil {
//	    // loader failure, cache unchanged
//	}
//	defer h.Release()
//	use(h.Value())
//
// Both an entry-count limit (MaxElements) and a byte budget (MaxMemory,
// accounted through Loader.SizeOf) are supported; at least one is required.
//
// Metrics (Hit/Miss/Evict/Size) are emitted through the Metrics interface;
// metrics/prom provides a Prometheus adapter.
package cache
