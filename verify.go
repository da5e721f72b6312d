package recordcache

import (
	"fmt"

	"github.com/hupe1980/recordcache/arena"
)

type verifier interface {
	Verify() error
}

// Verify walks the LRU list and the index and checks that they agree on
// membership, that every entry has a valid state and that the dirty set
// matches the entry states. It also verifies the index and, when supported,
// the arena. It is meant for tests and debugging.
func (c *Cache) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	seen := make(map[arena.Pointer]struct{}, c.size)
	dirty := 0
	prev := arena.NullPointer
	for e := c.lruHead; e != arena.NullPointer; e = c.nextLRU(e) {
		if _, dup := seen[e]; dup {
			return fmt.Errorf("%w: LRU cycle at entry %d", ErrCorrupted, e)
		}
		seen[e] = struct{}{}
		if len(seen) > c.size {
			return fmt.Errorf("%w: LRU list longer than size %d", ErrCorrupted, c.size)
		}

		if got := c.prevLRU(e); got != prev {
			return fmt.Errorf("%w: entry %d has prev %d, want %d", ErrCorrupted, e, got, prev)
		}

		position := c.a.GetLong(e, offPosition)
		if got := c.index.Get(position); got != e {
			return fmt.Errorf("%w: record %d indexed at %d, linked at %d", ErrCorrupted, position, got, e)
		}

		state := RecordState(c.a.GetByte(e, offState))
		if !state.Valid() {
			return fmt.Errorf("%w: record %d has state %d", ErrCorrupted, position, state)
		}
		if state.Dirty() != c.dirty.Contains(uint64(position)) {
			return fmt.Errorf("%w: record %d is %s, dirty set disagrees", ErrCorrupted, position, state)
		}
		if state.Dirty() {
			dirty++
		}
		prev = e
	}

	if prev != c.lruTail {
		return fmt.Errorf("%w: LRU tail is %d, last entry %d", ErrCorrupted, c.lruTail, prev)
	}
	if len(seen) != c.size || c.index.Len() != c.size {
		return fmt.Errorf("%w: %d linked, %d indexed, size %d", ErrCorrupted, len(seen), c.index.Len(), c.size)
	}
	if n := int(c.dirty.GetCardinality()); n != dirty {
		return fmt.Errorf("%w: dirty set holds %d records, %d entries are dirty", ErrCorrupted, n, dirty)
	}

	if err := c.index.Verify(); err != nil {
		return err
	}
	if v, ok := c.a.(verifier); ok {
		return v.Verify()
	}
	return nil
}
