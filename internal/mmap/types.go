package mmap

import "errors"

// Advice tells the kernel how a mapping is going to be used.
type Advice int

const (
	// AdviceNormal removes any earlier advice.
	AdviceNormal Advice = iota
	// AdviceRandom disables read-ahead. Arena blocks are reached by pointer.
	AdviceRandom
	// AdviceFree lets the kernel reclaim the pages. Their contents are
	// undefined afterwards, so callers must rewrite anything they need.
	AdviceFree
)

var (
	ErrClosed      = errors.New("mmap: mapping is closed")
	ErrInvalidSize = errors.New("mmap: invalid size")
)
