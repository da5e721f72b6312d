// Package compress implements the block format used for cached payloads and
// journal record content.
//
// A block is [uncompressed uint32][compressed uint32][data...] (little
// endian). A compressed size of 0 means the data is stored raw because the
// codec did not shrink it below 90% of its size. Type None stores data
// without any header.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type selects the compression algorithm.
type Type uint8

const (
	// None stores data as is.
	None Type = 0
	// LZ4 is fast block compression, suited to hot records.
	LZ4 Type = 1
	// ZSTD trades speed for a better ratio.
	ZSTD Type = 2
)

// HeaderSize is the size of the block header for LZ4 and ZSTD blocks.
const HeaderSize = 8

// MaxDecodedSize bounds the uncompressed size of an LZ4 or ZSTD block.
// Encode refuses larger input so that every block it writes decodes.
const MaxDecodedSize = 64 << 20

var (
	// ErrCorrupted is returned for malformed blocks.
	ErrCorrupted = errors.New("compress: corrupted block")
	// ErrUnknownType is returned for an unsupported Type.
	ErrUnknownType = errors.New("compress: unknown type")
	// ErrTooLarge is returned by Encode for input above MaxDecodedSize.
	ErrTooLarge = errors.New("compress: input too large")
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd" (case-insensitive; "" is none).
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedSize))
	return dec
}

// Encode returns data encoded as a block of type t. For None the input
// slice itself is returned and no size limit applies.
func Encode(t Type, data []byte) ([]byte, error) {
	if t != None && len(data) > MaxDecodedSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), MaxDecodedSize)
	}

	var compressed []byte
	switch t {
	case None:
		return data, nil
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[HeaderSize:], data)
		return out, nil
	}

	out := make([]byte, HeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[HeaderSize:], compressed)
	return out, nil
}

// Decode reverses Encode. For None the input slice itself is returned.
func Decode(t Type, block []byte) ([]byte, error) {
	if t == None {
		return block, nil
	}
	if t != LZ4 && t != ZSTD {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	if len(block) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupted, len(block))
	}

	size := binary.LittleEndian.Uint32(block[0:])
	csize := binary.LittleEndian.Uint32(block[4:])
	if size > MaxDecodedSize {
		return nil, fmt.Errorf("%w: claims %d uncompressed bytes", ErrCorrupted, size)
	}

	body := block[HeaderSize:]
	if csize == 0 {
		if uint32(len(body)) != size {
			return nil, fmt.Errorf("%w: raw block holds %d bytes, header says %d", ErrCorrupted, len(body), size)
		}
		return body, nil
	}
	if uint32(len(body)) != csize {
		return nil, fmt.Errorf("%w: block holds %d bytes, header says %d", ErrCorrupted, len(body), csize)
	}

	out := make([]byte, size)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupted, n, size)
		}
		return out, nil
	default:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
		if uint32(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupted, len(decoded), size)
		}
		return decoded, nil
	}
}
