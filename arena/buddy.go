package arena

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/hupe1980/recordcache/internal/mmap"
)

const (
	// HeaderSize is the number of bytes reserved at the start of every block.
	HeaderSize = 2

	// MinChunkSize is the smallest supported minChunkSize: a free block must
	// hold its header plus the next and previous free-list links.
	MinChunkSize = 16

	// MaxCapacity is the largest capacity addressable by a Pointer.
	MaxCapacity = 1 << 30
)

const (
	tagFree      byte = 0
	tagAllocated byte = 1

	offTag   = 0
	offLevel = 1
	offNext  = 2
	offPrev  = 6
)

var be = binary.BigEndian

// BuddyAllocator is an Arena using binary buddy allocation.
//
// Blocks are split lower-half-first: the working block keeps its address and
// the upper half is pushed onto the free list of the next lower level. Free
// coalesces a block with its buddy for as long as the buddy is free at the
// same level.
type BuddyAllocator struct {
	buf      []byte
	mapping  *mmap.Mapping
	capacity int
	minChunk int
	maxLevel int

	heads []Pointer
	tails []Pointer
	count []int
	free  int

	heap     bool
	debug    bool
	reserver Reserver
	closed   bool

	allocated    int
	allocs       uint64
	frees        uint64
	failedAllocs uint64
	splits       uint64
	merges       uint64
}

// NewBuddyAllocator creates an arena of capacity bytes (rounded down to a
// power of two, at most MaxCapacity) split into blocks of at least
// minChunkSize bytes. minChunkSize must be a power of two >= MinChunkSize.
func NewBuddyAllocator(capacity, minChunkSize int, opts ...Option) (*BuddyAllocator, error) {
	if minChunkSize < MinChunkSize || minChunkSize&(minChunkSize-1) != 0 {
		return nil, fmt.Errorf("%w: min chunk size %d must be a power of two >= %d", ErrInvalidConfig, minChunkSize, MinChunkSize)
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	if capacity < minChunkSize {
		return nil, fmt.Errorf("%w: capacity %d is smaller than min chunk size %d", ErrInvalidConfig, capacity, minChunkSize)
	}

	// Round down to a power of two.
	capacity = 1 << (bits.Len(uint(capacity)) - 1)

	b := &BuddyAllocator{
		capacity: capacity,
		minChunk: minChunkSize,
		maxLevel: bits.Len(uint(capacity/minChunkSize)) - 1,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.reserver != nil {
		if err := b.reserver.ReserveArena(int64(capacity)); err != nil {
			return nil, fmt.Errorf("arena: reserve %d bytes: %w", capacity, err)
		}
	}

	if b.heap {
		b.buf = make([]byte, capacity)
	} else {
		m, err := mmap.MapAnon(capacity)
		if err != nil {
			if b.reserver != nil {
				b.reserver.ReleaseArena(int64(capacity))
			}
			return nil, fmt.Errorf("arena: map %d bytes: %w", capacity, err)
		}
		// Records are looked up by key, not scanned.
		_ = m.Advise(mmap.AdviceRandom)
		b.mapping = m
		b.buf = m.Bytes()
	}

	levels := b.maxLevel + 1
	b.heads = make([]Pointer, levels)
	b.tails = make([]Pointer, levels)
	b.count = make([]int, levels)
	b.Clear()

	return b, nil
}

// Close releases the backing memory. The arena must not be used afterwards.
func (b *BuddyAllocator) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.buf = nil

	var err error
	if b.mapping != nil {
		err = b.mapping.Close()
		b.mapping = nil
	}
	if b.reserver != nil {
		b.reserver.ReleaseArena(int64(b.capacity))
	}
	return err
}

// Clear discards every allocation and leaves a single free block. A mapped
// buffer hands its pages back to the operating system.
func (b *BuddyAllocator) Clear() {
	if b.mapping != nil {
		_ = b.mapping.Advise(mmap.AdviceFree)
	}
	for l := range b.heads {
		b.heads[l] = NullPointer
		b.tails[l] = NullPointer
		b.count[l] = 0
	}
	b.free = 0
	b.allocated = 0

	b.writeHeader(0, tagFree, b.maxLevel)
	b.pushTail(b.maxLevel, 0)
}

// Allocate returns a block with at least size payload bytes, or NullPointer.
func (b *BuddyAllocator) Allocate(size int) Pointer {
	if size < 0 || size > b.capacity {
		b.failedAllocs++
		return NullPointer
	}

	level := b.levelFor(size)
	if level > b.maxLevel {
		b.failedAllocs++
		return NullPointer
	}

	l := level
	for l <= b.maxLevel && b.heads[l] == NullPointer {
		l++
	}
	if l > b.maxLevel {
		b.failedAllocs++
		return NullPointer
	}

	p := b.popHead(l)
	for l > level {
		l--
		upper := p + Pointer(b.minChunk<<l)
		b.writeHeader(upper, tagFree, l)
		b.pushTail(l, upper)
		b.splits++
	}

	b.writeHeader(p, tagAllocated, level)
	b.allocated++
	b.allocs++
	return p
}

// Free returns the block at p to the arena, merging it with free buddies.
func (b *BuddyAllocator) Free(p Pointer) {
	if b.debug {
		b.checkPointer(p)
		if tag := b.buf[int(p)+offTag]; tag != tagAllocated {
			panic(fmt.Errorf("%w: free of block %d with tag %d", ErrCorrupted, p, tag))
		}
	}

	level := int(b.buf[int(p)+offLevel])
	// Marked before merging so a second Free of an absorbed upper half is
	// still caught by the debug check.
	b.buf[int(p)+offTag] = tagFree
	for level < b.maxLevel {
		buddy := p ^ Pointer(b.minChunk<<level)
		if b.buf[int(buddy)+offTag] != tagFree || int(b.buf[int(buddy)+offLevel]) != level {
			break
		}
		b.unlink(level, buddy)
		p = min(p, buddy)
		level++
		b.merges++
	}

	b.writeHeader(p, tagFree, level)
	b.pushTail(level, p)
	b.allocated--
	b.frees++
}

// Get copies length payload bytes of block p starting at offset. A length
// <= 0 reads up to the end of the block.
func (b *BuddyAllocator) Get(p Pointer, offset, length int) []byte {
	start := int(p) + HeaderSize + offset
	end := int(p) + b.BlockSize(p)
	if length > 0 {
		end = start + length
	}
	if b.debug {
		b.checkRange(p, offset, end-start)
	}
	out := make([]byte, end-start)
	copy(out, b.buf[start:end])
	return out
}

// Set copies data into the payload of block p starting at offset.
func (b *BuddyAllocator) Set(p Pointer, offset int, data []byte) {
	if b.debug {
		b.checkRange(p, offset, len(data))
	}
	copy(b.buf[int(p)+HeaderSize+offset:], data)
}

// GetInt reads a big-endian int32.
func (b *BuddyAllocator) GetInt(p Pointer, offset int) int32 {
	return int32(be.Uint32(b.slice(p, offset, 4)))
}

// SetInt writes a big-endian int32.
func (b *BuddyAllocator) SetInt(p Pointer, offset int, v int32) {
	be.PutUint32(b.slice(p, offset, 4), uint32(v))
}

// GetLong reads a big-endian int64.
func (b *BuddyAllocator) GetLong(p Pointer, offset int) int64 {
	return int64(be.Uint64(b.slice(p, offset, 8)))
}

// SetLong writes a big-endian int64.
func (b *BuddyAllocator) SetLong(p Pointer, offset int, v int64) {
	be.PutUint64(b.slice(p, offset, 8), uint64(v))
}

// GetByte reads a single byte.
func (b *BuddyAllocator) GetByte(p Pointer, offset int) byte {
	return b.slice(p, offset, 1)[0]
}

// SetByte writes a single byte.
func (b *BuddyAllocator) SetByte(p Pointer, offset int, v byte) {
	b.slice(p, offset, 1)[0] = v
}

// BlockSize returns the full size of the block at p, header included.
func (b *BuddyAllocator) BlockSize(p Pointer) int {
	return b.minChunk << b.buf[int(p)+offLevel]
}

// Capacity returns the usable capacity in bytes.
func (b *BuddyAllocator) Capacity() int { return b.capacity }

// FreeSpace returns the number of bytes held by free blocks.
func (b *BuddyAllocator) FreeSpace() int { return b.free }

// MinChunk returns the size of a level-0 block.
func (b *BuddyAllocator) MinChunk() int { return b.minChunk }

// MaxLevel returns the level of a block spanning the whole arena.
func (b *BuddyAllocator) MaxLevel() int { return b.maxLevel }

// levelFor returns the smallest level whose blocks hold size payload bytes.
func (b *BuddyAllocator) levelFor(size int) int {
	need := size + HeaderSize
	if need <= b.minChunk {
		return 0
	}
	chunks := (need + b.minChunk - 1) / b.minChunk
	return bits.Len(uint(chunks - 1))
}

func (b *BuddyAllocator) slice(p Pointer, offset, n int) []byte {
	if b.debug {
		b.checkRange(p, offset, n)
	}
	start := int(p) + HeaderSize + offset
	return b.buf[start : start+n]
}

func (b *BuddyAllocator) writeHeader(p Pointer, tag byte, level int) {
	b.buf[int(p)+offTag] = tag
	b.buf[int(p)+offLevel] = byte(level)
}

func (b *BuddyAllocator) link(p Pointer, off int) Pointer {
	return Pointer(int32(be.Uint32(b.buf[int(p)+off:])))
}

func (b *BuddyAllocator) setLink(p Pointer, off int, v Pointer) {
	be.PutUint32(b.buf[int(p)+off:], uint32(int32(v)))
}

func (b *BuddyAllocator) pushTail(level int, p Pointer) {
	tail := b.tails[level]
	b.setLink(p, offNext, NullPointer)
	b.setLink(p, offPrev, tail)
	if tail == NullPointer {
		b.heads[level] = p
	} else {
		b.setLink(tail, offNext, p)
	}
	b.tails[level] = p
	b.count[level]++
	b.free += b.minChunk << level
}

func (b *BuddyAllocator) popHead(level int) Pointer {
	p := b.heads[level]
	if b.debug {
		if tag := b.buf[int(p)+offTag]; tag != tagFree || int(b.buf[int(p)+offLevel]) != level {
			panic(fmt.Errorf("%w: free list %d holds block %d with tag %d level %d",
				ErrCorrupted, level, p, tag, b.buf[int(p)+offLevel]))
		}
	}
	b.unlink(level, p)
	return p
}

func (b *BuddyAllocator) unlink(level int, p Pointer) {
	next := b.link(p, offNext)
	prev := b.link(p, offPrev)

	if prev == NullPointer {
		b.heads[level] = next
	} else {
		b.setLink(prev, offNext, next)
	}
	if next == NullPointer {
		b.tails[level] = prev
	} else {
		b.setLink(next, offPrev, prev)
	}

	b.count[level]--
	b.free -= b.minChunk << level
}

func (b *BuddyAllocator) checkPointer(p Pointer) {
	if b.closed {
		panic(ErrClosed)
	}
	if p < 0 || int(p) >= b.capacity || int(p)%b.minChunk != 0 {
		panic(fmt.Errorf("%w: invalid pointer %d", ErrCorrupted, p))
	}
}

func (b *BuddyAllocator) checkRange(p Pointer, offset, n int) {
	b.checkPointer(p)
	if b.buf[int(p)+offTag] != tagAllocated {
		panic(fmt.Errorf("%w: access to unallocated block %d", ErrCorrupted, p))
	}
	if offset < 0 || n < 0 || HeaderSize+offset+n > b.BlockSize(p) {
		panic(fmt.Errorf("%w: block %d size %d, offset %d, length %d", ErrOutOfBounds, p, b.BlockSize(p), offset, n))
	}
}

// Stats returns a snapshot of allocator counters.
func (b *BuddyAllocator) Stats() Stats {
	free := make([]int, len(b.count))
	copy(free, b.count)

	largest := 0
	for l := b.maxLevel; l >= 0; l-- {
		if b.count[l] > 0 {
			largest = b.minChunk << l
			break
		}
	}

	return Stats{
		Capacity:         b.capacity,
		FreeBytes:        b.free,
		MinChunkSize:     b.minChunk,
		MaxLevel:         b.maxLevel,
		LargestFreeBlock: largest,
		FreeBlocks:       free,
		AllocatedBlocks:  b.allocated,
		Allocs:           b.allocs,
		Frees:            b.frees,
		FailedAllocs:     b.failedAllocs,
		Splits:           b.splits,
		Merges:           b.merges,
	}
}

var _ Arena = (*BuddyAllocator)(nil)
