package hash

// Int64 returns a 32-bit hash of v by xor-folding its two halves.
func Int64(v int64) uint32 {
	u := uint64(v)
	return uint32(u ^ (u >> 32))
}

// Int32 returns v reinterpreted as an unsigned hash.
func Int32(v int32) uint32 {
	return uint32(v)
}

// Combine mixes h into seed with the classic multiply-by-31 scheme.
func Combine(seed, h uint32) uint32 {
	return seed*31 + h
}
