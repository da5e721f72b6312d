// Package indexmap implements a separate-chaining hash map whose bucket
// table and entries live inside an arena.Arena.
//
// The map associates keys with arena pointers (typically the block holding
// the value). The bucket table is one arena block of int32 pointers; each
// entry is one block:
//
//	[0:4]   next entry in the bucket chain
//	[4:8]   32-bit key hash
//	[8:12]  data pointer
//	[12:16] encoded key length
//	[16:]   encoded key
//
// Keys are encoded by a KeyCodec; two keys are equal when their hashes and
// encoded bytes match. New entries are appended at the tail of their bucket
// chain, and the table doubles once size reaches loadFactor·buckets.
//
// Put is all-or-nothing: when the arena cannot provide the entry or a grown
// table, the map is left exactly as it was and Put reports false.
//
// A Map is not safe for concurrent use.
package indexmap
