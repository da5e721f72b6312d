package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C_StreamingMatchesOneShot(t *testing.T) {
	data := []byte("evicted record payload")

	h := NewCRC32C()
	_, _ = h.Write(data[:7])
	_, _ = h.Write(data[7:])

	assert.Equal(t, CRC32C(data), h.Sum32())
	assert.NotEqual(t, CRC32C(data), CRC32C(data[1:]))
}

func TestInt64_FoldsHighBits(t *testing.T) {
	assert.Equal(t, uint32(42), Int64(42))
	assert.Equal(t, uint32(1), Int64(1<<32))
	assert.NotEqual(t, Int64(1<<32), Int64(1<<33))
	assert.Equal(t, uint32(0), Int64(0))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, uint32(31*3+4), Combine(3, 4))
	assert.NotEqual(t, Combine(1, 2), Combine(2, 1))
}
