package arena

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a snapshot of BuddyAllocator counters.
type Stats struct {
	Capacity         int
	FreeBytes        int
	MinChunkSize     int
	MaxLevel         int
	LargestFreeBlock int
	// FreeBlocks[l] is the length of the free list of level l.
	FreeBlocks      []int
	AllocatedBlocks int

	Allocs       uint64
	Frees        uint64
	FailedAllocs uint64
	Splits       uint64
	Merges       uint64
}

// UsedBytes returns the bytes held by allocated blocks, headers and
// rounding included.
func (s Stats) UsedBytes() int {
	return s.Capacity - s.FreeBytes
}

// Usage returns the used fraction of the capacity in percent.
func (s Stats) Usage() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.UsedBytes()) / float64(s.Capacity) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"Arena{capacity: %s, free: %s, largest free: %s, usage: %.1f%%, blocks: %d, allocs: %d, failed: %d, splits: %d, merges: %d}",
		humanize.IBytes(uint64(s.Capacity)),
		humanize.IBytes(uint64(s.FreeBytes)),
		humanize.IBytes(uint64(s.LargestFreeBlock)),
		s.Usage(),
		s.AllocatedBlocks,
		s.Allocs,
		s.FailedAllocs,
		s.Splits,
		s.Merges,
	)
}

func (b *BuddyAllocator) String() string {
	return b.Stats().String()
}
