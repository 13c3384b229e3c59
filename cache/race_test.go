package cache

import (
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// 64 goroutines hit the same cold key simultaneously. The loader must run
// exactly once and every caller must observe the same value pointer.
func TestRace_LookupDedup(t *testing.T) {
	ld := newRecordingLoader()
	ld.delay = 5 * time.Millisecond // widen the race window
	c := New[string, string](Options[string, string]{Loader: ld, MaxElements: 64})

	const goroutines = 64
	ptrs := make([]*string, goroutines)
	start := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		i := i
		g.Go(func() error {
			<-start
			h, err := c.Lookup("k42")
			if err != nil {
				return err
			}
			ptrs[i] = h.Value()
			h.Release()
			return nil
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := ld.acquired("k42"); n != 1 {
		t.Fatalf("loader ran %d times, want exactly 1", n)
	}
	for i, p := range ptrs {
		if p != ptrs[0] {
			t.Fatalf("caller %d observed a different value pointer", i)
		}
	}
}

// A mixed workload of concurrent Lookup/Peek/Remove on random keys.
// Should pass under `-race`, and every acquired value must be released
// exactly once after the final Clear.
func TestRace_MixedWorkload(t *testing.T) {
	ld := newRecordingLoader()
	c := New[string, string](Options[string, string]{
		Loader:      ld,
		MaxElements: 128,
		Shards:      8,
	})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 512
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id)*9973 + 1))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Remove
					c.Remove(k)
				case 5, 6, 7, 8, 9, 10, 11, 12, 13, 14: // ~10% — Peek
					h := c.Peek(k)
					h.Release()
				default: // ~85% — Lookup
					h, err := c.Lookup(k)
					if err != nil {
						t.Errorf("lookup %s: %v", k, err)
						return
					}
					if *h.Value() != "v:"+k {
						t.Errorf("lookup %s observed %q", k, *h.Value())
						h.Release()
						return
					}
					h.Release()
				}
			}
		}(w)
	}
	wg.Wait()

	checkInvariants(t, c)
	c.Clear()

	acquired, released := ld.totals()
	if acquired != released {
		t.Fatalf("acquired %d values but released %d", acquired, released)
	}
}

// Handles pinned while other goroutines churn the cache keep their value
// identity until released.
func TestRace_PinStability(t *testing.T) {
	ld := newRecordingLoader()
	c := New[string, string](Options[string, string]{Loader: ld, MaxElements: 16})

	h, err := c.Lookup("stable")
	if err != nil {
		t.Fatal(err)
	}
	want := h.Value()

	var g errgroup.Group
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				hh, err := c.Lookup(fmt.Sprintf("churn:%d:%d", w, i))
				if err != nil {
					return err
				}
				hh.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if h.Value() != want || *h.Value() != "v:stable" {
		t.Fatal("pinned value changed identity under churn")
	}
	if n := ld.released("stable"); n != 0 {
		t.Fatal("pinned value released under churn")
	}
	h.Release()
	c.Clear()

	if n := ld.released("stable"); n != 1 {
		t.Fatalf("release(stable) = %d, want 1", n)
	}
}
