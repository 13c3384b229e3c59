package cache

// Handle is a scoped pin on a cached value. While any handle for a value is
// live, the value is never passed to Loader.Release — even if the replacement
// sweep or Remove has already evicted the entry.
//
// Handles are cheap value types. Copying the struct does NOT add a pin; use
// Dup for that. Every non-empty handle must be released exactly once; Release
// on an already-released or empty handle is a no-op.
type Handle[K comparable, V any] struct {
	c  *Cache[K, V]
	vr *valueRef[K, V]
}

// IsEmpty reports whether the handle pins nothing (e.g. a Peek miss).
func (h Handle[K, V]) IsEmpty() bool { return h.vr == nil }

// Key returns the key the handle was obtained under.
// Undefined on an empty handle.
func (h Handle[K, V]) Key() K { return h.vr.key }

// Value returns the pinned value. The pointer stays valid until Release.
// Undefined on an empty handle.
func (h Handle[K, V]) Value() *V { return h.vr.val }

// Cache returns the owning cache (nil for the zero Handle, e.g. a Peek miss;
// a handle emptied by Release still reports its cache).
func (h Handle[K, V]) Cache() *Cache[K, V] { return h.c }

// Dup returns a second handle pinning the same value. Both must be released.
func (h Handle[K, V]) Dup() Handle[K, V] {
	if h.vr == nil {
		return Handle[K, V]{}
	}
	h.vr.uses.Add(1)
	return Handle[K, V]{c: h.c, vr: h.vr}
}

// Release drops the pin. If the entry was evicted while pinned and this was
// the last reference, the loader's Release callback fires here.
func (h *Handle[K, V]) Release() {
	if h.vr == nil {
		return
	}
	h.c.decRef(h.vr)
	h.vr = nil
}
