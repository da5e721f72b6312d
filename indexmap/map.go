package indexmap

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"github.com/hupe1980/recordcache/arena"
)

var (
	// ErrInvalidConfig is returned for an unusable capacity or load factor.
	ErrInvalidConfig = errors.New("indexmap: invalid configuration")
	// ErrNoSpace is returned when the arena cannot hold the bucket table.
	ErrNoSpace = errors.New("indexmap: arena has no space for bucket table")
	// ErrCorrupted reports a violated structural invariant.
	ErrCorrupted = errors.New("indexmap: corrupted")
)

const (
	offNext   = 0
	offHash   = 4
	offData   = 8
	offKeyLen = 12
	offKey    = 16

	slotSize = 4
)

// Map is a hash map from keys to arena pointers stored inside an arena.
type Map[K any] struct {
	a     arena.Arena
	codec KeyCodec[K]

	table      arena.Pointer
	buckets    int
	initial    int
	size       int
	loadFactor float64
	threshold  int

	scratch []byte
}

// New allocates the bucket table in a and returns an empty map.
func New[K any](a arena.Arena, codec KeyCodec[K], opts ...Option) (*Map[K], error) {
	o := options{
		initialCapacity: DefaultInitialCapacity,
		loadFactor:      DefaultLoadFactor,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.initialCapacity < 1 {
		return nil, fmt.Errorf("%w: initial capacity %d", ErrInvalidConfig, o.initialCapacity)
	}
	if o.loadFactor <= 0 || o.loadFactor > 1 {
		return nil, fmt.Errorf("%w: load factor %v", ErrInvalidConfig, o.loadFactor)
	}

	m := &Map[K]{
		a:          a,
		codec:      codec,
		loadFactor: o.loadFactor,
	}

	buckets := 1 << bits.Len(uint(o.initialCapacity-1))
	table := m.newTable(buckets)
	if table == arena.NullPointer {
		return nil, ErrNoSpace
	}
	m.initial = buckets
	m.setTable(table, buckets)

	return m, nil
}

// Len returns the number of entries.
func (m *Map[K]) Len() int { return m.size }

// Buckets returns the current number of buckets.
func (m *Map[K]) Buckets() int { return m.buckets }

// Get returns the data pointer stored for key, or arena.NullPointer.
func (m *Map[K]) Get(key K) arena.Pointer {
	h, kb := m.encode(key)
	e := m.find(h, kb)
	if e == arena.NullPointer {
		return arena.NullPointer
	}
	return arena.Pointer(m.a.GetInt(e, offData))
}

// Put associates key with data, replacing an existing association. It
// returns false, leaving the map unchanged, when the arena cannot provide
// the entry or the grown bucket table.
func (m *Map[K]) Put(key K, data arena.Pointer) bool {
	h, kb := m.encode(key)
	if e := m.find(h, kb); e != arena.NullPointer {
		m.a.SetInt(e, offData, int32(data))
		return true
	}

	entry := m.a.Allocate(offKey + len(kb))
	if entry == arena.NullPointer {
		return false
	}

	if m.size+1 >= m.threshold && !m.grow() {
		m.a.Free(entry)
		return false
	}

	m.a.SetInt(entry, offNext, int32(arena.NullPointer))
	m.a.SetInt(entry, offHash, int32(h))
	m.a.SetInt(entry, offData, int32(data))
	m.a.SetInt(entry, offKeyLen, int32(len(kb)))
	m.a.Set(entry, offKey, kb)

	m.appendToBucket(m.table, int(h)&(m.buckets-1), entry)
	m.size++
	return true
}

// Remove deletes key and returns the data pointer it held, or
// arena.NullPointer if the key was absent.
func (m *Map[K]) Remove(key K) arena.Pointer {
	h, kb := m.encode(key)
	bucket := int(h) & (m.buckets - 1)

	prev := arena.NullPointer
	for e := m.slot(m.table, bucket); e != arena.NullPointer; e = m.next(e) {
		if !m.matches(e, h, kb) {
			prev = e
			continue
		}

		next := m.next(e)
		if prev == arena.NullPointer {
			m.setSlot(m.table, bucket, next)
		} else {
			m.a.SetInt(prev, offNext, int32(next))
		}

		data := arena.Pointer(m.a.GetInt(e, offData))
		m.a.Free(e)
		m.size--
		if m.size == 0 {
			m.shrink()
		}
		return data
	}
	return arena.NullPointer
}

// Range calls fn for every entry in bucket order until fn returns false.
// fn must not modify the map.
func (m *Map[K]) Range(fn func(key K, data arena.Pointer) bool) {
	for i := 0; i < m.buckets; i++ {
		for e := m.slot(m.table, i); e != arena.NullPointer; e = m.next(e) {
			if !fn(m.key(e), arena.Pointer(m.a.GetInt(e, offData))) {
				return
			}
		}
	}
}

// Clear frees every entry and returns the bucket table to its initial size.
func (m *Map[K]) Clear() {
	for i := 0; i < m.buckets; i++ {
		e := m.slot(m.table, i)
		for e != arena.NullPointer {
			next := m.next(e)
			m.a.Free(e)
			e = next
		}
		m.setSlot(m.table, i, arena.NullPointer)
	}
	m.size = 0
	m.shrink()
}

// Free releases every entry and the bucket table. The map must not be used
// afterwards.
func (m *Map[K]) Free() {
	if m.table == arena.NullPointer {
		return
	}
	m.Clear()
	m.a.Free(m.table)
	m.table = arena.NullPointer
}

// grow doubles the bucket table, relinking the existing entries. It returns
// false without touching the map when the new table cannot be allocated.
func (m *Map[K]) grow() bool {
	buckets := m.buckets * 2
	table := m.newTable(buckets)
	if table == arena.NullPointer {
		return false
	}

	// Entries of old bucket i land in i or i+old; both keep chain order.
	old := m.buckets
	for i := 0; i < old; i++ {
		loTail, hiTail := arena.NullPointer, arena.NullPointer
		e := m.slot(m.table, i)
		for e != arena.NullPointer {
			next := m.next(e)
			m.a.SetInt(e, offNext, int32(arena.NullPointer))

			if int(uint32(m.a.GetInt(e, offHash)))&old == 0 {
				m.linkAfter(table, i, loTail, e)
				loTail = e
			} else {
				m.linkAfter(table, i+old, hiTail, e)
				hiTail = e
			}
			e = next
		}
	}

	m.a.Free(m.table)
	m.setTable(table, buckets)
	return true
}

// shrink replaces a grown table of an empty map with one of the initial
// size, so draining the map gives back all the memory it grew into. The
// grown table stays when the arena cannot provide the small one.
func (m *Map[K]) shrink() {
	if m.size != 0 || m.buckets <= m.initial || m.table == arena.NullPointer {
		return
	}
	table := m.newTable(m.initial)
	if table == arena.NullPointer {
		return
	}
	m.a.Free(m.table)
	m.setTable(table, m.initial)
}

func (m *Map[K]) linkAfter(table arena.Pointer, bucket int, tail, e arena.Pointer) {
	if tail == arena.NullPointer {
		m.setSlot(table, bucket, e)
	} else {
		m.a.SetInt(tail, offNext, int32(e))
	}
}

func (m *Map[K]) appendToBucket(table arena.Pointer, bucket int, entry arena.Pointer) {
	e := m.slot(table, bucket)
	if e == arena.NullPointer {
		m.setSlot(table, bucket, entry)
		return
	}
	for {
		next := m.next(e)
		if next == arena.NullPointer {
			m.a.SetInt(e, offNext, int32(entry))
			return
		}
		e = next
	}
}

func (m *Map[K]) newTable(buckets int) arena.Pointer {
	table := m.a.Allocate(buckets * slotSize)
	if table == arena.NullPointer {
		return arena.NullPointer
	}
	// -1 is all ones in any byte order.
	m.a.Set(table, 0, bytes.Repeat([]byte{0xff}, buckets*slotSize))
	return table
}

func (m *Map[K]) setTable(table arena.Pointer, buckets int) {
	m.table = table
	m.buckets = buckets
	m.threshold = int(m.loadFactor * float64(buckets))
}

func (m *Map[K]) find(h uint32, kb []byte) arena.Pointer {
	for e := m.slot(m.table, int(h)&(m.buckets-1)); e != arena.NullPointer; e = m.next(e) {
		if m.matches(e, h, kb) {
			return e
		}
	}
	return arena.NullPointer
}

func (m *Map[K]) matches(e arena.Pointer, h uint32, kb []byte) bool {
	if uint32(m.a.GetInt(e, offHash)) != h || int(m.a.GetInt(e, offKeyLen)) != len(kb) {
		return false
	}
	if len(kb) == 0 {
		return true
	}
	return bytes.Equal(m.a.Get(e, offKey, len(kb)), kb)
}

func (m *Map[K]) key(e arena.Pointer) K {
	n := int(m.a.GetInt(e, offKeyLen))
	if n == 0 {
		return m.codec.Decode(nil)
	}
	return m.codec.Decode(m.a.Get(e, offKey, n))
}

func (m *Map[K]) encode(key K) (uint32, []byte) {
	n := m.codec.Size(key)
	if cap(m.scratch) < n {
		m.scratch = make([]byte, n)
	}
	kb := m.scratch[:n]
	m.codec.Encode(kb, key)
	return m.codec.Hash(key), kb
}

func (m *Map[K]) next(e arena.Pointer) arena.Pointer {
	return arena.Pointer(m.a.GetInt(e, offNext))
}

func (m *Map[K]) slot(table arena.Pointer, bucket int) arena.Pointer {
	return arena.Pointer(m.a.GetInt(table, bucket*slotSize))
}

func (m *Map[K]) setSlot(table arena.Pointer, bucket int, p arena.Pointer) {
	m.a.SetInt(table, bucket*slotSize, int32(p))
}

// Verify checks that every entry sits in the bucket its hash selects, that
// no entry is reachable twice, and that the reachable count equals Len.
func (m *Map[K]) Verify() error {
	seen := make(map[arena.Pointer]struct{}, m.size)
	for i := 0; i < m.buckets; i++ {
		for e := m.slot(m.table, i); e != arena.NullPointer; e = m.next(e) {
			if _, dup := seen[e]; dup {
				return fmt.Errorf("%w: entry %d reachable twice (bucket %d)", ErrCorrupted, e, i)
			}
			seen[e] = struct{}{}

			h := uint32(m.a.GetInt(e, offHash))
			if int(h)&(m.buckets-1) != i {
				return fmt.Errorf("%w: entry %d with hash %#x in bucket %d", ErrCorrupted, e, h, i)
			}
			if want := m.codec.Hash(m.key(e)); want != h {
				return fmt.Errorf("%w: entry %d stores hash %#x, key hashes to %#x", ErrCorrupted, e, h, want)
			}
		}
	}
	if len(seen) != m.size {
		return fmt.Errorf("%w: %d reachable entries, size %d", ErrCorrupted, len(seen), m.size)
	}
	return nil
}
