// Package hash provides the checksum and integer-mixing helpers shared by the
// journal and the arena-backed index.
//
// # CRC32-Castagnoli (CRC32C)
//
// Journal records are framed with CRC32C, which is hardware accelerated on
// x86 (SSE4.2) and ARM (CRC extension) and detects all burst errors up to
// 32 bits.
//
//	checksum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	h.Write(header)
//	h.Write(payload)
//	checksum := h.Sum32()
//
// # Integer keys
//
// Int64 folds the high word into the low word, so positions that differ only
// in their upper bits still land in different buckets.
package hash
