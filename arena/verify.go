package arena

import "fmt"

// Verify walks the free lists and the block tiling of the whole arena and
// reports the first violated invariant as an ErrCorrupted error.
//
// Verify is O(capacity/minChunkSize) and meant for tests and debugging.
func (b *BuddyAllocator) Verify() error {
	if b.closed {
		return ErrClosed
	}

	maxNodes := b.capacity/b.minChunk + 1
	listed := 0
	listedBytes := 0

	for level := 0; level <= b.maxLevel; level++ {
		size := b.minChunk << level
		prev := NullPointer
		n := 0
		for p := b.heads[level]; p != NullPointer; p = b.link(p, offNext) {
			if n++; n > maxNodes {
				return fmt.Errorf("%w: cycle in free list %d", ErrCorrupted, level)
			}
			if p < 0 || int(p) >= b.capacity || int(p)%size != 0 {
				return fmt.Errorf("%w: free list %d holds misaligned block %d", ErrCorrupted, level, p)
			}
			if tag := b.buf[int(p)+offTag]; tag != tagFree {
				return fmt.Errorf("%w: free list %d holds block %d with tag %d", ErrCorrupted, level, p, tag)
			}
			if got := int(b.buf[int(p)+offLevel]); got != level {
				return fmt.Errorf("%w: free list %d holds block %d of level %d", ErrCorrupted, level, p, got)
			}
			if got := b.link(p, offPrev); got != prev {
				return fmt.Errorf("%w: block %d prev link %d, want %d", ErrCorrupted, p, got, prev)
			}
			prev = p
		}
		if b.tails[level] != prev {
			return fmt.Errorf("%w: free list %d tail %d, want %d", ErrCorrupted, level, b.tails[level], prev)
		}
		if n != b.count[level] {
			return fmt.Errorf("%w: free list %d has %d blocks, counted %d", ErrCorrupted, level, n, b.count[level])
		}
		listed += n
		listedBytes += n * size
	}

	if listedBytes != b.free {
		return fmt.Errorf("%w: free lists hold %d bytes, counter says %d", ErrCorrupted, listedBytes, b.free)
	}

	// Blocks tile the buffer, so the headers can be walked front to back.
	freeBlocks, freeBytes, allocated := 0, 0, 0
	for off := 0; off < b.capacity; {
		tag := b.buf[off+offTag]
		level := int(b.buf[off+offLevel])
		if level > b.maxLevel {
			return fmt.Errorf("%w: block %d has level %d > %d", ErrCorrupted, off, level, b.maxLevel)
		}
		size := b.minChunk << level
		if off%size != 0 {
			return fmt.Errorf("%w: block %d is not aligned to its size %d", ErrCorrupted, off, size)
		}
		switch tag {
		case tagFree:
			if level < b.maxLevel {
				buddy := off ^ size
				if b.buf[buddy+offTag] == tagFree && int(b.buf[buddy+offLevel]) == level {
					return fmt.Errorf("%w: free buddies %d and %d were not merged", ErrCorrupted, off, buddy)
				}
			}
			freeBlocks++
			freeBytes += size
		case tagAllocated:
			allocated++
		default:
			return fmt.Errorf("%w: block %d has unknown tag %d", ErrCorrupted, off, tag)
		}
		off += size
	}

	if freeBlocks != listed || freeBytes != b.free {
		return fmt.Errorf("%w: %d free blocks (%d bytes) in tiling, %d (%d bytes) listed",
			ErrCorrupted, freeBlocks, freeBytes, listed, b.free)
	}
	if allocated != b.allocated {
		return fmt.Errorf("%w: %d allocated blocks in tiling, counter says %d", ErrCorrupted, allocated, b.allocated)
	}
	return nil
}
