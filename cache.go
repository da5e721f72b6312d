package recordcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/recordcache/arena"
	"github.com/hupe1980/recordcache/indexmap"
	"github.com/hupe1980/recordcache/internal/compress"
	"github.com/hupe1980/recordcache/internal/conv"
)

// Cache entry block layout.
const (
	offPosition = 0
	offNextLRU  = 8
	offPrevLRU  = 12
	offData     = 16
	offState    = 20
	offSegment  = 21
	entrySize   = 25
)

// Payload block layout: stored length followed by the stored bytes.
const (
	offPayloadLen  = 0
	offPayloadData = 4
)

// Cache is an LRU record cache whose entries and payloads live in an arena.
type Cache struct {
	mu sync.Mutex

	a     arena.Arena
	index *indexmap.Map[int64]
	opts  options
	log   *Logger

	// lruHead is the most recently used entry, lruTail the eviction candidate.
	lruHead arena.Pointer
	lruTail arena.Pointer
	size    int

	// dirty holds the positions of every entry not in StateShared.
	dirty         *roaring64.Bitmap
	retryEviction bool
	closed        bool

	hits      uint64
	misses    uint64
	evictions uint64
	flushes   uint64
}

// New creates an empty cache storing its index, entries and payloads in a.
// The cache takes no ownership of a.
func New(a arena.Arena, opts ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.evictionPercent < 0 || o.evictionPercent > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPercent, o.evictionPercent)
	}
	if o.compression != compress.None && o.compression != compress.LZ4 && o.compression != compress.ZSTD {
		return nil, fmt.Errorf("%w: %d", compress.ErrUnknownType, o.compression)
	}

	index, err := indexmap.New[int64](a, indexmap.Int64{}, o.indexOptions...)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Cache{
		a:       a,
		index:   index,
		opts:    o,
		log:     o.logger.WithCluster(o.clusterID),
		lruHead: arena.NullPointer,
		lruTail: arena.NullPointer,
		dirty:   roaring64.New(),
	}, nil
}

// ClusterID returns the cluster id reported to flushers.
func (c *Cache) ClusterID() int32 { return c.opts.clusterID }

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Put stores content for position in the given state and makes it the most
// recently used entry.
//
// It returns false (and no error) when the record could not be stored: the
// arena is out of space, or the key is new and the eviction size is reached
// without a default flusher. The cache is unchanged in that case and the
// caller is expected to evict and retry. Illegal state transitions and data
// segment mismatches are returned as errors, also without any change.
func (c *Cache) Put(segment int32, position int64, content []byte, state RecordState) (bool, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.put(context.Background(), segment, position, content, state)
	c.opts.metrics.RecordPut(time.Since(start), ok, err)
	return ok, err
}

func (c *Cache) put(ctx context.Context, segment int32, position int64, content []byte, state RecordState) (bool, error) {
	if c.closed {
		return false, ErrClosed
	}
	if !state.Valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidState, state)
	}

	if e := c.index.Get(position); e != arena.NullPointer {
		return c.update(ctx, e, segment, position, content, state)
	}

	if c.opts.evictionSize > 0 && c.size >= c.opts.evictionSize {
		if c.opts.flusher == nil {
			return false, nil
		}
		if _, err := c.evict(ctx, c.opts.flusher, c.evictCount(true)); err != nil {
			return false, err
		}
		if c.size >= c.opts.evictionSize {
			return false, nil
		}
	}

	payload, err := c.storePayload(content)
	if err != nil || payload == arena.NullPointer {
		return false, err
	}

	e := c.a.Allocate(entrySize)
	if e == arena.NullPointer {
		c.a.Free(payload)
		return false, nil
	}

	c.a.SetLong(e, offPosition, position)
	c.a.SetInt(e, offData, int32(payload))
	c.a.SetByte(e, offState, byte(state))
	c.a.SetInt(e, offSegment, segment)

	if !c.index.Put(position, e) {
		c.a.Free(e)
		c.a.Free(payload)
		return false, nil
	}

	c.pushFront(e)
	c.size++
	if state.Dirty() {
		c.dirty.Add(uint64(position))
	}
	return true, nil
}

func (c *Cache) update(ctx context.Context, e arena.Pointer, segment int32, position int64, content []byte, state RecordState) (bool, error) {
	current := RecordState(c.a.GetByte(e, offState))
	next, err := transition(position, current, state)
	if err != nil {
		c.log.LogTransitionRejected(ctx, position, current, state)
		return false, err
	}

	if cached := c.a.GetInt(e, offSegment); cached != segment {
		return false, fmt.Errorf("%w: record %d is cached for segment %d, update names %d",
			ErrDataSegmentMismatch, position, cached, segment)
	}

	payload, err := c.storePayload(content)
	if err != nil || payload == arena.NullPointer {
		return false, err
	}

	c.a.Free(arena.Pointer(c.a.GetInt(e, offData)))
	c.a.SetInt(e, offData, int32(payload))
	c.a.SetByte(e, offState, byte(next))
	if next.Dirty() {
		c.dirty.Add(uint64(position))
	} else {
		c.dirty.Remove(uint64(position))
	}

	c.moveToFront(e)
	return true, nil
}

// Get returns a copy of the content cached for position and makes it the
// most recently used entry. A miss has no side effects.
func (c *Cache) Get(position int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}

	e := c.index.Get(position)
	if e == arena.NullPointer {
		c.misses++
		c.opts.metrics.RecordGet(false)
		return nil, false
	}

	c.moveToFront(e)
	c.hits++
	c.opts.metrics.RecordGet(true)
	return c.content(e), true
}

// Contains reports whether position is cached without touching the LRU order.
func (c *Cache) Contains(position int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed && c.index.Get(position) != arena.NullPointer
}

// State returns the state of the cached record without touching the LRU order.
func (c *Cache) State(position int64) (RecordState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, false
	}
	e := c.index.Get(position)
	if e == arena.NullPointer {
		return 0, false
	}
	return RecordState(c.a.GetByte(e, offState)), true
}

// Remove drops position from the cache without flushing it.
func (c *Cache) Remove(position int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	e := c.index.Get(position)
	found := e != arena.NullPointer
	if found {
		c.removeEntry(e)
	}
	c.opts.metrics.RecordRemove(found)
	return found
}

// Keys returns the cached positions from most to least recently used.
func (c *Cache) Keys() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]int64, 0, c.size)
	for e := c.lruHead; e != arena.NullPointer; e = c.nextLRU(e) {
		keys = append(keys, c.a.GetLong(e, offPosition))
	}
	return keys
}

// DirtyCount returns the number of records not in StateShared.
func (c *Cache) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.dirty.GetCardinality())
}

// DirtyPositions returns the positions of records not in StateShared in
// ascending order.
func (c *Cache) DirtyPositions() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int64, 0, c.dirty.GetCardinality())
	it := c.dirty.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Close drains the cache, flushing every dirty record with f (or the
// default flusher), and releases the index. The arena is left to its owner.
func (c *Cache) Close(ctx context.Context, f Flusher) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if f == nil {
		f = c.opts.flusher
	}
	if _, err := c.evict(ctx, f, c.size); err != nil {
		return err
	}

	c.index.Free()
	c.closed = true
	return nil
}

func (c *Cache) storePayload(content []byte) (arena.Pointer, error) {
	stored, err := compress.Encode(c.opts.compression, content)
	if err != nil {
		return arena.NullPointer, fmt.Errorf("compress payload: %w", err)
	}

	n, err := conv.IntToInt32(len(stored))
	if err != nil {
		return arena.NullPointer, fmt.Errorf("payload length: %w", err)
	}

	p := c.a.Allocate(offPayloadData + len(stored))
	if p == arena.NullPointer {
		return arena.NullPointer, nil
	}
	c.a.SetInt(p, offPayloadLen, n)
	c.a.Set(p, offPayloadData, stored)
	return p, nil
}

func (c *Cache) content(e arena.Pointer) []byte {
	p := arena.Pointer(c.a.GetInt(e, offData))
	n := int(c.a.GetInt(p, offPayloadLen))
	if n == 0 {
		return []byte{}
	}

	out, err := compress.Decode(c.opts.compression, c.a.Get(p, offPayloadData, n))
	if err != nil {
		panic(fmt.Errorf("%w: payload of record %d: %w", ErrCorrupted, c.a.GetLong(e, offPosition), err))
	}
	return out
}

func (c *Cache) record(e arena.Pointer) Record {
	return Record{
		ClusterID:     c.opts.clusterID,
		Position:      c.a.GetLong(e, offPosition),
		DataSegmentID: c.a.GetInt(e, offSegment),
		Content:       c.content(e),
		State:         RecordState(c.a.GetByte(e, offState)),
	}
}

// removeEntry unlinks e from the index and the LRU list and frees its blocks.
func (c *Cache) removeEntry(e arena.Pointer) {
	position := c.a.GetLong(e, offPosition)
	c.index.Remove(position)
	c.unlink(e)
	c.a.Free(arena.Pointer(c.a.GetInt(e, offData)))
	c.a.Free(e)
	c.size--
	c.dirty.Remove(uint64(position))
}

func (c *Cache) nextLRU(e arena.Pointer) arena.Pointer {
	return arena.Pointer(c.a.GetInt(e, offNextLRU))
}

func (c *Cache) prevLRU(e arena.Pointer) arena.Pointer {
	return arena.Pointer(c.a.GetInt(e, offPrevLRU))
}

func (c *Cache) pushFront(e arena.Pointer) {
	c.a.SetInt(e, offPrevLRU, int32(arena.NullPointer))
	c.a.SetInt(e, offNextLRU, int32(c.lruHead))
	if c.lruHead != arena.NullPointer {
		c.a.SetInt(c.lruHead, offPrevLRU, int32(e))
	}
	c.lruHead = e
	if c.lruTail == arena.NullPointer {
		c.lruTail = e
	}
}

func (c *Cache) unlink(e arena.Pointer) {
	next := c.nextLRU(e)
	prev := c.prevLRU(e)

	if prev == arena.NullPointer {
		c.lruHead = next
	} else {
		c.a.SetInt(prev, offNextLRU, int32(next))
	}
	if next == arena.NullPointer {
		c.lruTail = prev
	} else {
		c.a.SetInt(next, offPrevLRU, int32(prev))
	}
}

func (c *Cache) moveToFront(e arena.Pointer) {
	if c.lruHead == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}
