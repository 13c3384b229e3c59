package cache

// CART replacement, after Bansal & Modha (FAST'04) with the temporal filter.
// Everything in this file runs under the policy mutex. Queue fronts act as
// the clock hands; new and rotated entries go to the backs.

func (c *Cache[K, V]) isFull() bool {
	if c.opt.MaxElements > 0 && c.t1.Len()+c.t2.Len() >= c.opt.MaxElements {
		return true
	}
	if c.opt.MaxMemory > 0 && c.usedMemory.Load() >= c.opt.MaxMemory {
		return true
	}
	return false
}

// applyInsert installs key's freshly loaded value, evicting one resident
// entry first when the cache is full. The effective capacity is recaptured
// per insertion so the sweep keeps making progress when the byte budget (or
// pinned entries) pushed the resident count past MaxElements.
func (c *Cache[K, V]) applyInsert(key K, vr *valueRef[K, V]) {
	capacity := max(c.opt.MaxElements, c.t1.Len()+c.t2.Len())

	if c.isFull() {
		c.sweep(capacity)
		c.demote(capacity)
		c.trimGhosts(key, capacity)
	}

	g, ghostHit := c.ghosts[key]
	if !ghostHit {
		// History miss: admit at T1 back as Short with a clear reference bit.
		e := &entry[K, V]{key: key, val: vr, where: onT1}
		e.elem = c.t1.PushBack(e)
		c.ns++
		c.shardFor(key).put(key, e)
	} else {
		// History hit: the ghost re-enters T1 as Long; p adapts toward the
		// list the ghost came from.
		if g.where == onB1 {
			c.p = min(c.p+max(1, c.ns/max(1, c.b1.Len())), capacity)
			c.b1.Remove(g.elem)
		} else {
			c.p = max(c.p-max(1, c.nl/max(1, c.b2.Len())), 0)
			c.b2.Remove(g.elem)
		}
		delete(c.ghosts, key)

		fromB2 := g.where == onB2
		g.val = vr
		g.ref.Store(false)
		g.long = true
		g.where = onT1
		g.elem = c.t1.PushBack(g)
		c.nl++
		c.shardFor(key).put(key, g)

		if fromB2 && c.t2.Len()+c.b2.Len()+c.t1.Len()-c.ns >= capacity {
			c.q = min(c.q+1, 2*capacity-c.t1.Len())
		}
	}

	c.usedMemory.Add(c.opt.Loader.SizeOf(vr.val))
	c.reportSize()
}

// sweep advances the clock hands: re-referenced T2 entries return to T1, and
// the T1 hand rotates referenced entries (promoting long-resident Shorts to
// Long) and pushes cold Long entries on to T2.
func (c *Cache[K, V]) sweep(capacity int) {
	for c.t2.Len() > 0 {
		e := c.t2.Front().Value.(*entry[K, V])
		if !e.ref.Load() {
			break
		}
		c.t2.Remove(e.elem)
		e.ref.Store(false)
		e.where = onT1
		e.elem = c.t1.PushBack(e)

		if c.t2.Len()+c.b2.Len()+c.t1.Len()-c.ns >= capacity {
			c.q = min(c.q+1, 2*capacity-c.t1.Len())
		}
	}

	for c.t1.Len() > 0 {
		e := c.t1.Front().Value.(*entry[K, V])
		if !e.long && !e.ref.Load() {
			break
		}
		if e.ref.Load() {
			c.t1.MoveToBack(e.elem)
			e.ref.Store(false)
			if c.t1.Len() >= min(c.p+1, c.b1.Len()) && !e.long {
				e.long = true
				c.ns--
				c.nl++
			}
		} else {
			c.t1.Remove(e.elem)
			e.where = onT2
			e.elem = c.t2.PushBack(e)
			c.q = max(c.q-1, capacity-c.t1.Len())
		}
	}
}

// demote turns one unpinned resident entry into a ghost, preferring T1 when
// it is at or above its target size. When every candidate is pinned nothing
// is evicted and the cache grows past its nominal capacity; the next
// insertions catch up once pins drop.
func (c *Cache[K, V]) demote(capacity int) {
	var victim *entry[K, V]
	fromT1 := false

	if c.t1.Len() >= max(1, c.p) {
		for el := c.t1.Front(); el != nil; el = el.Next() {
			if e := el.Value.(*entry[K, V]); e.val.uses.Load() == 1 {
				victim, fromT1 = e, true
				break
			}
		}
	}
	if victim == nil {
		for el := c.t2.Front(); el != nil; el = el.Next() {
			if e := el.Value.(*entry[K, V]); e.val.uses.Load() == 1 {
				victim = e
				break
			}
		}
	}
	if victim == nil {
		return
	}

	if fromT1 {
		c.t1.Remove(victim.elem)
		if victim.long {
			c.nl--
		} else {
			c.ns--
		}
		victim.where = onB1
		victim.elem = c.b1.PushFront(victim)
	} else {
		c.t2.Remove(victim.elem)
		c.nl--
		victim.where = onB2
		victim.elem = c.b2.PushFront(victim)
	}
	c.ghosts[victim.key] = victim

	// Unindex first so no new pin can arrive, then drop the cache's
	// reference. A pin that raced in before the unindex keeps the value
	// alive; the last handle releases it.
	c.shardFor(victim.key).drop(victim.key)
	vr := victim.val
	victim.val = nil
	c.usedMemory.Add(-c.opt.Loader.SizeOf(vr.val))
	c.opt.Metrics.Evict(EvictPolicy)
	if cb := c.opt.OnEvict; cb != nil {
		cb(victim.key, vr.val, EvictPolicy)
	}
	c.decRef(vr)
}

// trimGhosts bounds the history to capacity+1 keys, dropping from the back
// of B1 while it exceeds its target q, otherwise from B2.
func (c *Cache[K, V]) trimGhosts(key K, capacity int) {
	if _, ok := c.ghosts[key]; ok {
		return
	}
	if c.b1.Len()+c.b2.Len() < capacity+1 {
		return
	}
	if c.b1.Len() > max(0, c.q) || c.b2.Len() == 0 {
		g := c.b1.Back().Value.(*entry[K, V])
		c.b1.Remove(g.elem)
		delete(c.ghosts, g.key)
	} else {
		g := c.b2.Back().Value.(*entry[K, V])
		c.b2.Remove(g.elem)
		delete(c.ghosts, g.key)
	}
}

// unlink detaches a resident entry from its clock queue and fixes the
// filter counts. Used by Remove; demotion has its own path.
func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	if e.where == onT1 {
		c.t1.Remove(e.elem)
		if e.long {
			c.nl--
		} else {
			c.ns--
		}
	} else {
		c.t2.Remove(e.elem)
		c.nl--
	}
}
