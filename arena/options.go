package arena

// Reserver books arena capacity against a budget shared by several arenas.
// *resource.Controller satisfies it.
type Reserver interface {
	ReserveArena(capacity int64) error
	ReleaseArena(capacity int64)
}

// Option configures a BuddyAllocator.
type Option func(*BuddyAllocator)

// WithReserver reserves the arena capacity from r on
// construction and releases it on Close.
func WithReserver(r Reserver) Option {
	return func(b *BuddyAllocator) {
		b.reserver = r
	}
}

// WithHeapBuffer backs the arena with a Go byte slice instead of an
// anonymous memory mapping.
func WithHeapBuffer() Option {
	return func(b *BuddyAllocator) {
		b.heap = true
	}
}

// WithDebugChecks enables per-operation structural assertions. Double frees,
// tag mismatches and out-of-bounds accesses panic with ErrCorrupted or
// ErrOutOfBounds.
func WithDebugChecks(enabled bool) Option {
	return func(b *BuddyAllocator) {
		b.debug = enabled
	}
}
