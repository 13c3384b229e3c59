package cache

import (
	"sync/atomic"
	"testing"

	"github.com/tridemax/CART/internal/lruref"
	"github.com/tridemax/CART/internal/mtrand"
)

// traceLoader materializes each int key as its own value and counts loads.
type traceLoader struct {
	acquires atomic.Int64
}

func (l *traceLoader) Acquire(key int) (*int, error) {
	l.acquires.Add(1)
	v := key
	return &v, nil
}

func (l *traceLoader) Release(int, *int) {}

func (l *traceLoader) SizeOf(*int) int64 { return 8 }

// replayTrace feeds the same deterministic trace to a CART cache and an LRU
// baseline of equal capacity and returns both miss counts.
func replayTrace(t *testing.T, size, tries int, draw func(*mtrand.Rand) int) (cartMisses, lruMisses int64) {
	t.Helper()

	ld := &traceLoader{}
	cart := New[int, int](Options[int, int]{Loader: ld, MaxElements: size})
	lru := lruref.New[int, int](size, func(k int) int { return k })

	rnd := mtrand.New(1)
	for i := 0; i < tries; i++ {
		key := draw(rnd)

		h, err := cart.Lookup(key)
		if err != nil {
			t.Fatal(err)
		}
		h.Release()

		lru.Get(key)
	}
	return ld.acquires.Load(), lru.Misses()
}

const traceTries = 1_005_000

// Uniform draws over [0, 10000) at cache size 100: CART must miss less than
// an LRU of identical capacity on the same trace.
func TestTrace_UniformDraw(t *testing.T) {
	if testing.Short() {
		t.Skip("million-access trace")
	}
	t.Parallel()

	cart, lru := replayTrace(t, 100, traceTries, func(rnd *mtrand.Rand) int {
		return rnd.IntRange(0, 10000)
	})
	t.Logf("CART missed %d / %d, LRU missed %d / %d", cart, traceTries, lru, traceTries)
	if cart >= lru {
		t.Fatalf("CART (%d misses) must beat LRU (%d misses)", cart, lru)
	}
}

// Binned mixture at cache size 500: each access picks a range uniformly,
// then a key uniformly within it.
func TestTrace_BinnedDraw(t *testing.T) {
	if testing.Short() {
		t.Skip("million-access trace")
	}
	t.Parallel()

	ranges := [6]struct{ start, len int }{
		{0, 150}, {150, 350}, {500, 500}, {1000, 1500}, {2500, 2500}, {5000, 10000},
	}
	cart, lru := replayTrace(t, 500, traceTries, func(rnd *mtrand.Rand) int {
		r := ranges[rnd.IntRange(0, len(ranges))]
		return rnd.IntRange(r.start, r.start+r.len)
	})
	t.Logf("CART missed %d / %d, LRU missed %d / %d", cart, traceTries, lru, traceTries)
	if cart >= lru {
		t.Fatalf("CART (%d misses) must beat LRU (%d misses)", cart, lru)
	}
}
