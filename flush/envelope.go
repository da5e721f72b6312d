package flush

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/recordcache"
	"github.com/hupe1980/recordcache/internal/hash"
)

// ErrInvalidEnvelope is returned by DecodeRecord for malformed input.
var ErrInvalidEnvelope = errors.New("flush: invalid record envelope")

const (
	envelopeVersion = 1
	// [version 1][state 1][cluster 4][position 8][segment 4][crc32c 4]
	envelopeHeaderSize = 1 + 1 + 4 + 8 + 4 + 4
)

// EncodeRecord serializes rec into the self-describing envelope stored by
// blob flushers. The checksum covers the content.
func EncodeRecord(rec recordcache.Record) []byte {
	buf := make([]byte, envelopeHeaderSize+len(rec.Content))
	buf[0] = envelopeVersion
	buf[1] = byte(rec.State)
	binary.LittleEndian.PutUint32(buf[2:], uint32(rec.ClusterID))
	binary.LittleEndian.PutUint64(buf[6:], uint64(rec.Position))
	binary.LittleEndian.PutUint32(buf[14:], uint32(rec.DataSegmentID))
	binary.LittleEndian.PutUint32(buf[18:], hash.CRC32C(rec.Content))
	copy(buf[envelopeHeaderSize:], rec.Content)
	return buf
}

// DecodeRecord parses an envelope written by EncodeRecord. The returned
// content aliases data.
func DecodeRecord(data []byte) (recordcache.Record, error) {
	if len(data) < envelopeHeaderSize {
		return recordcache.Record{}, fmt.Errorf("%w: %d bytes", ErrInvalidEnvelope, len(data))
	}
	if data[0] != envelopeVersion {
		return recordcache.Record{}, fmt.Errorf("%w: version %d", ErrInvalidEnvelope, data[0])
	}

	rec := recordcache.Record{
		State:         recordcache.RecordState(data[1]),
		ClusterID:     int32(binary.LittleEndian.Uint32(data[2:])),
		Position:      int64(binary.LittleEndian.Uint64(data[6:])),
		DataSegmentID: int32(binary.LittleEndian.Uint32(data[14:])),
		Content:       data[envelopeHeaderSize:],
	}
	if !rec.State.Valid() {
		return recordcache.Record{}, fmt.Errorf("%w: state %d", ErrInvalidEnvelope, data[1])
	}
	if hash.CRC32C(rec.Content) != binary.LittleEndian.Uint32(data[18:]) {
		return recordcache.Record{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidEnvelope)
	}
	return rec, nil
}
