// Package arena provides fixed-capacity byte arenas addressed by integer
// pointers, and a buddy-allocation implementation of them.
//
// # Addressing
//
// A Pointer is the offset of a block inside the arena. Blocks carry a small
// header (HeaderSize bytes); all payload offsets passed to Get, Set and the
// typed accessors are relative to the first payload byte. Integers are stored
// big-endian.
//
// # Buddy allocation
//
// The capacity is rounded down to a power of two and divided into blocks of
// minChunkSize·2^level bytes. Every block starts at an offset aligned to its
// own size, so the buddy of a block is found by flipping a single bit of its
// pointer. Free blocks of each level are kept on an intrusive doubly-linked
// list stored inside the blocks themselves:
//
//	┌─────┬───────┬──────────┬──────────┬────────────┐
//	│ tag │ level │ next (4) │ prev (4) │ ...        │  free block
//	└─────┴───────┴──────────┴──────────┴────────────┘
//	┌─────┬───────┬───────────────────────────────────┐
//	│ tag │ level │ payload                           │  allocated block
//	└─────┴───────┴───────────────────────────────────┘
//
// Allocation failure is a value: Allocate returns NullPointer when no block
// of the required size can be carved out. Callers react by evicting.
//
// # Concurrency
//
// Arenas are not safe for concurrent use. One arena belongs to one owner
// (typically one record cache) that serializes access.
//
// # Off-heap backing
//
// By default the buffer is an anonymous memory mapping outside the Go heap.
// WithHeapBuffer switches to a plain Go slice, which is convenient in tests.
package arena
