package arena

import "errors"

// Pointer addresses a block inside an Arena.
type Pointer int32

// NullPointer is the distinguished "no block" pointer.
const NullPointer Pointer = -1

// IsNull reports whether p is NullPointer.
func (p Pointer) IsNull() bool { return p == NullPointer }

var (
	// ErrInvalidConfig is returned for an unusable capacity or chunk size.
	ErrInvalidConfig = errors.New("arena: invalid configuration")
	// ErrCorrupted reports a violated structural invariant.
	ErrCorrupted = errors.New("arena: corrupted")
	// ErrOutOfBounds reports an access beyond a block's payload.
	ErrOutOfBounds = errors.New("arena: access out of block bounds")
	// ErrClosed is returned when using a closed arena.
	ErrClosed = errors.New("arena: closed")
)

// Arena is a fixed-capacity byte buffer handing out blocks by pointer.
//
// Offsets are relative to the first payload byte of the block. Accessing
// bytes outside the block is a caller bug and is only detected when debug
// checks are enabled.
type Arena interface {
	// Allocate returns a block with at least size payload bytes, or NullPointer.
	Allocate(size int) Pointer
	// Free returns a block to the arena.
	Free(p Pointer)

	// Get copies length payload bytes starting at offset. A length <= 0
	// reads up to the end of the block.
	Get(p Pointer, offset, length int) []byte
	// Set copies data into the payload starting at offset.
	Set(p Pointer, offset int, data []byte)

	GetInt(p Pointer, offset int) int32
	SetInt(p Pointer, offset int, v int32)
	GetLong(p Pointer, offset int) int64
	SetLong(p Pointer, offset int, v int64)
	GetByte(p Pointer, offset int) byte
	SetByte(p Pointer, offset int, v byte)

	// BlockSize returns the full size of the block at p, header included.
	BlockSize(p Pointer) int
	// Capacity returns the usable capacity in bytes.
	Capacity() int
	// FreeSpace returns the number of bytes held by free blocks.
	FreeSpace() int
	// Clear discards every allocation.
	Clear()
}
