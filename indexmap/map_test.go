package indexmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recordcache/arena"
)

func newArena(t *testing.T, capacity int) *arena.BuddyAllocator {
	t.Helper()
	a, err := arena.NewBuddyAllocator(capacity, 16, arena.WithHeapBuffer(), arena.WithDebugChecks(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestMap_PutGetRemove(t *testing.T) {
	a := newArena(t, 1<<16)
	m, err := New[int64](a, Int64{})
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialCapacity, m.Buckets())

	assert.Equal(t, arena.NullPointer, m.Get(1))

	require.True(t, m.Put(1, 100))
	require.True(t, m.Put(2, 200))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, arena.Pointer(100), m.Get(1))
	assert.Equal(t, arena.Pointer(200), m.Get(2))

	// Overwrite keeps the size.
	require.True(t, m.Put(1, 101))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, arena.Pointer(101), m.Get(1))

	assert.Equal(t, arena.Pointer(101), m.Remove(1))
	assert.Equal(t, arena.NullPointer, m.Remove(1))
	assert.Equal(t, arena.NullPointer, m.Get(1))
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Verify())
}

func TestMap_GrowAndDrain(t *testing.T) {
	a := newArena(t, 1<<20)
	m, err := New[int64](a, Int64{})
	require.NoError(t, err)

	const n = 5000
	for i := range int64(n) {
		require.True(t, m.Put(i, arena.Pointer(i)), "put %d", i)
	}
	assert.Equal(t, n, m.Len())
	assert.Greater(t, m.Buckets(), DefaultInitialCapacity)
	assert.LessOrEqual(t, m.Len(), int(DefaultLoadFactor*float64(m.Buckets())))
	require.NoError(t, m.Verify())

	for i := range int64(n) {
		require.Equal(t, arena.Pointer(i), m.Get(i), "get %d", i)
	}

	count := 0
	m.Range(func(key int64, data arena.Pointer) bool {
		assert.Equal(t, arena.Pointer(key), data)
		count++
		return true
	})
	assert.Equal(t, n, count)

	for i := int64(n - 1); i >= 0; i-- {
		require.Equal(t, arena.Pointer(i), m.Remove(i))
	}
	assert.Equal(t, 0, m.Len())
	require.NoError(t, m.Verify())

	m.Free()
	assert.Equal(t, a.Capacity(), a.FreeSpace())
}

func TestMap_DrainRestoresFreeSpace(t *testing.T) {
	a := newArena(t, 1<<20)
	m, err := New[int64](a, Int64{})
	require.NoError(t, err)
	base := a.FreeSpace()

	for round := range 2 {
		for i := range int64(200) {
			require.True(t, m.Put(i, arena.Pointer(i)))
		}
		require.Greater(t, m.Buckets(), DefaultInitialCapacity, "round %d", round)

		for i := range int64(200) {
			require.Equal(t, arena.Pointer(i), m.Remove(i))
		}
		assert.Equal(t, 0, m.Len())
		assert.Equal(t, DefaultInitialCapacity, m.Buckets())
		assert.Equal(t, base, a.FreeSpace(), "round %d", round)
		require.NoError(t, m.Verify())
	}
}

func TestMap_ClearShrinksGrownTable(t *testing.T) {
	a := newArena(t, 1<<20)
	m, err := New[int64](a, Int64{}, WithInitialCapacity(8))
	require.NoError(t, err)
	base := a.FreeSpace()

	for i := range int64(100) {
		require.True(t, m.Put(i, arena.Pointer(i)))
	}
	require.Greater(t, m.Buckets(), 8)

	m.Clear()
	assert.Equal(t, 8, m.Buckets())
	assert.Equal(t, base, a.FreeSpace())

	require.True(t, m.Put(1, 1))
	assert.Equal(t, arena.Pointer(1), m.Get(1))
}

func TestMap_HashCollisions(t *testing.T) {
	a := newArena(t, 1<<14)
	m, err := New[int64](a, Int64{})
	require.NoError(t, err)

	// Both keys fold to hash 1.
	k1, k2 := int64(1), int64(1<<32)
	require.Equal(t, Int64{}.Hash(k1), Int64{}.Hash(k2))

	require.True(t, m.Put(k1, 10))
	require.True(t, m.Put(k2, 20))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, arena.Pointer(10), m.Get(k1))
	assert.Equal(t, arena.Pointer(20), m.Get(k2))

	assert.Equal(t, arena.Pointer(10), m.Remove(k1))
	assert.Equal(t, arena.Pointer(20), m.Get(k2))
	require.NoError(t, m.Verify())
}

func TestMap_BucketChainOrder(t *testing.T) {
	a := newArena(t, 1<<12)
	m, err := New[int64](a, Int64{}, WithInitialCapacity(4), WithLoadFactor(1))
	require.NoError(t, err)

	for _, k := range []int64{0, 4, 8} {
		require.True(t, m.Put(k, arena.Pointer(k)))
	}
	require.Equal(t, 4, m.Buckets())

	var keys []int64
	m.Range(func(key int64, _ arena.Pointer) bool {
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, []int64{0, 4, 8}, keys)

	// Growth keeps relative order within the split chains.
	require.True(t, m.Put(1, 1))
	require.Equal(t, 8, m.Buckets())

	keys = keys[:0]
	m.Range(func(key int64, _ arena.Pointer) bool {
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, []int64{0, 8, 1, 4}, keys)
	require.NoError(t, m.Verify())
}

func TestMap_PutIsAllOrNothing(t *testing.T) {
	a := newArena(t, 256)
	m, err := New[int64](a, Int64{}, WithInitialCapacity(4))
	require.NoError(t, err)

	// Leave no room for a doubled table.
	filler := a.Allocate(126)
	require.Equal(t, arena.Pointer(128), filler)

	require.True(t, m.Put(1, 10))
	require.True(t, m.Put(2, 20))
	free := a.FreeSpace()

	assert.False(t, m.Put(3, 30))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 4, m.Buckets())
	assert.Equal(t, free, a.FreeSpace())
	assert.Equal(t, arena.NullPointer, m.Get(3))
	assert.Equal(t, arena.Pointer(10), m.Get(1))
	assert.Equal(t, arena.Pointer(20), m.Get(2))
	require.NoError(t, m.Verify())

	a.Free(filler)
	require.True(t, m.Put(3, 30))
	assert.Equal(t, 8, m.Buckets())
	assert.Equal(t, arena.Pointer(30), m.Get(3))
	require.NoError(t, m.Verify())
}

func TestMap_EntryAllocationFailure(t *testing.T) {
	a := newArena(t, 64)
	m, err := New[int64](a, Int64{}, WithInitialCapacity(2), WithLoadFactor(1))
	require.NoError(t, err)

	require.True(t, m.Put(1, 1))
	// Only a 16 byte block is left, too small for another entry.
	assert.Equal(t, 16, a.FreeSpace())
	assert.False(t, m.Put(2, 2))
	assert.Equal(t, 16, a.FreeSpace())
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Verify())
}

func TestMap_Codecs(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		a := newArena(t, 1<<14)
		m, err := New[[]byte](a, Bytes{})
		require.NoError(t, err)

		require.True(t, m.Put([]byte("alpha"), 1))
		require.True(t, m.Put([]byte("beta"), 2))
		require.True(t, m.Put([]byte{}, 3))

		assert.Equal(t, arena.Pointer(1), m.Get([]byte("alpha")))
		assert.Equal(t, arena.Pointer(2), m.Get([]byte("beta")))
		assert.Equal(t, arena.Pointer(3), m.Get(nil))
		assert.Equal(t, arena.NullPointer, m.Get([]byte("gamma")))

		seen := map[string]arena.Pointer{}
		m.Range(func(key []byte, data arena.Pointer) bool {
			seen[string(key)] = data
			return true
		})
		assert.Equal(t, map[string]arena.Pointer{"alpha": 1, "beta": 2, "": 3}, seen)
		require.NoError(t, m.Verify())
	})

	t.Run("record id", func(t *testing.T) {
		a := newArena(t, 1<<14)
		m, err := New[RecordID](a, RID{})
		require.NoError(t, err)

		require.True(t, m.Put(RecordID{ClusterID: 12, Position: 7}, 1))
		require.True(t, m.Put(RecordID{ClusterID: 13, Position: 7}, 2))

		assert.Equal(t, arena.Pointer(1), m.Get(RecordID{ClusterID: 12, Position: 7}))
		assert.Equal(t, arena.Pointer(2), m.Get(RecordID{ClusterID: 13, Position: 7}))
		assert.Equal(t, arena.NullPointer, m.Get(RecordID{ClusterID: 12, Position: 8}))

		var keys []RecordID
		m.Range(func(key RecordID, _ arena.Pointer) bool {
			keys = append(keys, key)
			return false
		})
		assert.Len(t, keys, 1)
	})

	t.Run("int32", func(t *testing.T) {
		a := newArena(t, 1<<14)
		m, err := New[int32](a, Int32{})
		require.NoError(t, err)

		require.True(t, m.Put(-5, 1))
		assert.Equal(t, arena.Pointer(1), m.Get(-5))
		assert.Equal(t, arena.Pointer(1), m.Remove(-5))
		require.NoError(t, m.Verify())
	})
}

func TestMap_New(t *testing.T) {
	a := newArena(t, 64)

	_, err := New[int64](a, Int64{}, WithLoadFactor(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New[int64](a, Int64{}, WithLoadFactor(1.5))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New[int64](a, Int64{}, WithInitialCapacity(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// 128 buckets do not fit into 64 bytes.
	_, err = New[int64](a, Int64{})
	assert.ErrorIs(t, err, ErrNoSpace)

	m, err := New[int64](a, Int64{}, WithInitialCapacity(3))
	require.NoError(t, err)
	assert.Equal(t, 4, m.Buckets())
}

func TestMap_Clear(t *testing.T) {
	a := newArena(t, 1<<14)
	m, err := New[int64](a, Int64{})
	require.NoError(t, err)
	base := a.FreeSpace()

	for i := range int64(50) {
		require.True(t, m.Put(i, arena.Pointer(i)))
	}
	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, base, a.FreeSpace())
	assert.Equal(t, arena.NullPointer, m.Get(3))
	require.NoError(t, m.Verify())
}

func TestMap_VerifyDetectsCorruption(t *testing.T) {
	a := newArena(t, 1<<14)
	m, err := New[int64](a, Int64{})
	require.NoError(t, err)
	require.True(t, m.Put(42, 1))

	h, kb := m.encode(42)
	e := m.find(h, kb)
	require.NotEqual(t, arena.NullPointer, e)

	a.SetInt(e, offHash, int32(h+1))
	assert.ErrorIs(t, m.Verify(), ErrCorrupted)
}
