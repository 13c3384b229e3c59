package cache

import (
	"strconv"
	"testing"
)

// Fuzz arbitrary op sequences over a tiny keyspace and a tiny cache, then
// check the structural invariants and the release-exactly-once contract.
// Two bits of each op byte select the operation, three bits the key, and the
// top bit decides whether a lookup handle is held for a while.
func FuzzCache_OpSequences(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x01, 0x02})
	f.Add([]byte("interleaved ops"))
	f.Add([]byte{0x80, 0x81, 0x82, 0x00, 0x08, 0x10, 0x18})

	f.Fuzz(func(t *testing.T, ops []byte) {
		// Cap the sequence to keep each case fast.
		const limit = 512
		if len(ops) > limit {
			ops = ops[:limit]
		}

		ld := newRecordingLoader()
		c := New[string, string](Options[string, string]{
			Loader:      ld,
			MaxElements: 4,
			Shards:      2,
		})

		adopted := 0 // values handed over via Insert
		var pinned []Handle[string, string]

		for _, op := range ops {
			key := "k" + strconv.Itoa(int(op&7))
			switch (op >> 3) & 3 {
			case 0: // Lookup, possibly holding the pin
				h, err := c.Lookup(key)
				if err != nil {
					t.Fatalf("lookup %s: %v", key, err)
				}
				if *h.Value() != "v:"+key && *h.Value() != "inserted" {
					t.Fatalf("lookup %s observed %q", key, *h.Value())
				}
				if op&0x80 != 0 && len(pinned) < 8 {
					pinned = append(pinned, h)
				} else {
					h.Release()
				}
			case 1: // Peek
				h := c.Peek(key)
				if !h.IsEmpty() && *h.Value() != "v:"+key && *h.Value() != "inserted" {
					t.Fatalf("peek %s observed %q", key, *h.Value())
				}
				h.Release()
			case 2: // Remove
				c.Remove(key)
			case 3: // Insert a caller-supplied value
				v := "inserted"
				h, err := c.Insert(key, &v)
				if err != nil {
					t.Fatalf("insert %s: %v", key, err)
				}
				if h.Value() == &v {
					adopted++
				}
				h.Release()
			}
		}

		for i := range pinned {
			pinned[i].Release()
		}
		checkInvariants(t, c)
		c.Clear()

		acquired, released := ld.totals()
		if acquired+adopted != released {
			t.Fatalf("acquired %d + adopted %d, released %d", acquired, adopted, released)
		}
	})
}
