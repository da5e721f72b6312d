package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/recordcache/internal/compress"
	"github.com/hupe1980/recordcache/internal/conv"
	"github.com/hupe1980/recordcache/internal/hash"
)

// Type identifies the kind of journal entry.
type Type uint8

const (
	// TypeRecord carries a record image handed over by a flusher.
	TypeRecord Type = 1
	// TypeRemove marks a record as deleted from durable storage.
	TypeRemove Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeRecord:
		return "record"
	case TypeRemove:
		return "remove"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

var (
	// ErrInvalidCRC is returned for a frame whose checksum does not match.
	ErrInvalidCRC     = errors.New("journal: invalid entry checksum")
	ErrInvalidType    = errors.New("journal: invalid entry type")
	ErrShortRead      = errors.New("journal: short entry payload")
	ErrRecordTooLarge = errors.New("journal: entry too large")
)

// MaxPayloadSize bounds the payload length a frame header may claim.
const MaxPayloadSize = 64 << 20

const (
	// [crc 4][type 1][lsn 8][len 4]
	frameHeaderSize = 4 + 1 + 8 + 4
	// [cluster 4][position 8][segment 4][state 1][codec 1][content len 4]
	recordFixedSize = 4 + 8 + 4 + 1 + 1 + 4
	// [cluster 4][position 8]
	removeSize = 4 + 8
)

// Entry is a single journal entry.
type Entry struct {
	LSN           uint64
	Type          Type
	ClusterID     int32
	Position      int64
	DataSegmentID int32
	// State is the cache state of the record when it was flushed.
	State   uint8
	Content []byte
}

// encode appends the framed entry to dst, compressing Content with codec.
func (e *Entry) encode(dst []byte, codec compress.Type) ([]byte, error) {
	var payload []byte
	switch e.Type {
	case TypeRecord:
		content, err := compress.Encode(codec, e.Content)
		if err != nil {
			return nil, err
		}
		contentLen, err := conv.IntToUint32(len(content))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRecordTooLarge, err)
		}
		payload = make([]byte, recordFixedSize+len(content))
		binary.LittleEndian.PutUint32(payload[0:], uint32(e.ClusterID))
		binary.LittleEndian.PutUint64(payload[4:], uint64(e.Position))
		binary.LittleEndian.PutUint32(payload[12:], uint32(e.DataSegmentID))
		payload[16] = e.State
		payload[17] = byte(codec)
		binary.LittleEndian.PutUint32(payload[18:], contentLen)
		copy(payload[recordFixedSize:], content)
	case TypeRemove:
		payload = make([]byte, removeSize)
		binary.LittleEndian.PutUint32(payload[0:], uint32(e.ClusterID))
		binary.LittleEndian.PutUint64(payload[4:], uint64(e.Position))
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, e.Type)
	}

	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(payload))
	}

	var header [frameHeaderSize]byte
	header[4] = byte(e.Type)
	binary.LittleEndian.PutUint64(header[5:], e.LSN)
	binary.LittleEndian.PutUint32(header[13:], uint32(len(payload)))

	crc := hash.NewCRC32C()
	crc.Write(header[4:])
	crc.Write(payload)
	binary.LittleEndian.PutUint32(header[0:], crc.Sum32())

	dst = append(dst, header[:]...)
	return append(dst, payload...), nil
}

// decode reads one framed entry from r and returns it together with the
// number of bytes consumed. A clean end of input returns io.EOF; a frame cut
// short returns io.ErrUnexpectedEOF.
func decode(r io.Reader) (*Entry, int64, error) {
	var header [frameHeaderSize]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, int64(n), io.ErrUnexpectedEOF
	}

	checksum := binary.LittleEndian.Uint32(header[0:])
	typ := Type(header[4])
	lsn := binary.LittleEndian.Uint64(header[5:])
	length := binary.LittleEndian.Uint32(header[13:])

	if length > MaxPayloadSize {
		return nil, frameHeaderSize, ErrRecordTooLarge
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(r, payload); err != nil {
		return nil, frameHeaderSize + int64(n), io.ErrUnexpectedEOF
	}
	n := frameHeaderSize + int64(length)

	crc := hash.NewCRC32C()
	crc.Write(header[4:])
	crc.Write(payload)
	if crc.Sum32() != checksum {
		return nil, n, ErrInvalidCRC
	}

	e := &Entry{LSN: lsn, Type: typ}
	switch typ {
	case TypeRecord:
		if err := parseRecord(payload, e); err != nil {
			return nil, n, err
		}
	case TypeRemove:
		if len(payload) != removeSize {
			return nil, n, ErrShortRead
		}
		e.ClusterID = int32(binary.LittleEndian.Uint32(payload[0:]))
		e.Position = int64(binary.LittleEndian.Uint64(payload[4:]))
	default:
		return nil, n, fmt.Errorf("%w: %d", ErrInvalidType, typ)
	}
	return e, n, nil
}

func parseRecord(payload []byte, e *Entry) error {
	if len(payload) < recordFixedSize {
		return ErrShortRead
	}
	e.ClusterID = int32(binary.LittleEndian.Uint32(payload[0:]))
	e.Position = int64(binary.LittleEndian.Uint64(payload[4:]))
	e.DataSegmentID = int32(binary.LittleEndian.Uint32(payload[12:]))
	e.State = payload[16]
	codec := compress.Type(payload[17])

	contentLen := binary.LittleEndian.Uint32(payload[18:])
	if uint32(len(payload)-recordFixedSize) != contentLen {
		return ErrShortRead
	}

	content, err := compress.Decode(codec, payload[recordFixedSize:])
	if err != nil {
		return err
	}
	e.Content = content
	return nil
}
