package indexmap

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/recordcache/internal/hash"
)

// KeyCodec hashes keys and converts them to and from their stored bytes.
type KeyCodec[K any] interface {
	Hash(k K) uint32
	Size(k K) int
	// Encode writes k into dst, which has exactly Size(k) bytes.
	Encode(dst []byte, k K)
	Decode(src []byte) K
}

// Int32 encodes int32 keys such as cluster ids.
type Int32 struct{}

func (Int32) Hash(k int32) uint32 { return hash.Int32(k) }
func (Int32) Size(int32) int      { return 4 }

func (Int32) Encode(dst []byte, k int32) { binary.BigEndian.PutUint32(dst, uint32(k)) }
func (Int32) Decode(src []byte) int32    { return int32(binary.BigEndian.Uint32(src)) }

// Int64 encodes int64 keys such as cluster positions.
type Int64 struct{}

func (Int64) Hash(k int64) uint32 { return hash.Int64(k) }
func (Int64) Size(int64) int      { return 8 }

func (Int64) Encode(dst []byte, k int64) { binary.BigEndian.PutUint64(dst, uint64(k)) }
func (Int64) Decode(src []byte) int64    { return int64(binary.BigEndian.Uint64(src)) }

// RecordID identifies a record by cluster and position within the cluster.
type RecordID struct {
	ClusterID int32
	Position  int64
}

// RID encodes RecordID keys.
type RID struct{}

func (RID) Hash(k RecordID) uint32 {
	return hash.Combine(hash.Int32(k.ClusterID), hash.Int64(k.Position))
}

func (RID) Size(RecordID) int { return 12 }

func (RID) Encode(dst []byte, k RecordID) {
	binary.BigEndian.PutUint32(dst, uint32(k.ClusterID))
	binary.BigEndian.PutUint64(dst[4:], uint64(k.Position))
}

func (RID) Decode(src []byte) RecordID {
	return RecordID{
		ClusterID: int32(binary.BigEndian.Uint32(src)),
		Position:  int64(binary.BigEndian.Uint64(src[4:])),
	}
}

// Bytes encodes raw byte-slice keys, hashed with xxhash.
type Bytes struct{}

func (Bytes) Hash(k []byte) uint32 {
	h := xxhash.Sum64(k)
	return uint32(h ^ (h >> 32))
}

func (Bytes) Size(k []byte) int { return len(k) }

func (Bytes) Encode(dst []byte, k []byte) { copy(dst, k) }

func (Bytes) Decode(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
