package recordcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/recordcache/arena"
)

// Evict removes the configured percentage of entries starting at the least
// recently used one, flushing dirty entries with f first. See EvictPercent.
func (c *Cache) Evict(ctx context.Context, f Flusher) (bool, error) {
	return c.EvictPercent(ctx, f, c.opts.evictionPercent)
}

// EvictPercent removes size*percent/100 entries from the LRU tail. Dirty
// entries are handed to f before their memory is released. A count that
// rounds to zero is a no-op.
//
// A flusher error stops the pass: the failing record stays cached and the
// error is returned as a *FlushError. A dirty entry without a flusher stops
// the pass with ErrNoFlusher. It reports whether any entry was removed.
func (c *Cache) EvictPercent(ctx context.Context, f Flusher, percent int) (bool, error) {
	if percent < 0 || percent > 100 {
		return false, fmt.Errorf("%w: %d", ErrInvalidPercent, percent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	n, err := c.evict(ctx, f, c.size*percent/100)
	return n > 0, err
}

// EvictSharedRecordsOnly removes up to the configured percentage of entries
// from the LRU tail without any I/O. Dirty entries are skipped in place and
// mark the cache as needing a later full eviction (see
// EvictionRetryNeeded). It reports whether any entry was removed.
func (c *Cache) EvictSharedRecordsOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	start := time.Now()
	count := c.size * c.opts.evictionPercent / 100

	evicted, skipped := 0, 0
	for e := c.lruTail; e != arena.NullPointer && evicted < count; {
		prev := c.prevLRU(e)
		if RecordState(c.a.GetByte(e, offState)).Dirty() {
			skipped++
			c.retryEviction = true
		} else {
			c.removeEntry(e)
			evicted++
		}
		e = prev
	}

	c.evictions += uint64(evicted)
	c.opts.metrics.RecordEviction(evicted, 0, time.Since(start), nil)
	c.log.LogSharedEviction(context.Background(), count, evicted, skipped)
	return evicted > 0
}

// EvictionRetryNeeded reports whether a shared-only eviction skipped dirty
// records since the last complete eviction pass.
func (c *Cache) EvictionRetryNeeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryEviction
}

// PutOrEvict is Put followed, on refusal, by one eviction pass and exactly
// one retry. The pass removes at least one entry even when the configured
// percentage rounds to zero. A nil f falls back to the default flusher.
func (c *Cache) PutOrEvict(ctx context.Context, f Flusher, segment int32, position int64, content []byte, state RecordState) (bool, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.put(ctx, segment, position, content, state)
	if ok || err != nil {
		c.opts.metrics.RecordPut(time.Since(start), ok, err)
		return ok, err
	}

	if f == nil {
		f = c.opts.flusher
	}
	if _, err = c.evict(ctx, f, c.evictCount(true)); err == nil {
		ok, err = c.put(ctx, segment, position, content, state)
	}

	c.opts.metrics.RecordPut(time.Since(start), ok, err)
	return ok, err
}

// Flush hands every dirty record to f and marks it SHARED, keeping it cached
// and leaving the LRU order untouched. Records are flushed in ascending
// position order. On error the records flushed so far stay SHARED and the
// rest stay dirty. It returns the number of records flushed.
func (c *Cache) Flush(ctx context.Context, f Flusher) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	if f == nil {
		f = c.opts.flusher
	}

	positions := c.dirty.ToArray()
	if len(positions) > 0 && f == nil {
		return 0, ErrNoFlusher
	}

	flushed := 0
	var err error
	for _, p := range positions {
		if err = ctx.Err(); err != nil {
			break
		}

		e := c.index.Get(int64(p))
		if e == arena.NullPointer {
			err = fmt.Errorf("%w: dirty record %d is not indexed", ErrCorrupted, p)
			break
		}

		if err = c.flushEntry(ctx, f, e); err != nil {
			break
		}
		c.a.SetByte(e, offState, byte(StateShared))
		c.dirty.Remove(p)
		flushed++
	}

	c.flushes += uint64(flushed)
	c.log.LogFlush(ctx, flushed, len(positions)-flushed, err)
	return flushed, err
}

// Drain evicts every entry, flushing dirty ones with f. The cache stays
// usable afterwards.
func (c *Cache) Drain(ctx context.Context, f Flusher) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if f == nil {
		f = c.opts.flusher
	}

	_, err := c.evict(ctx, f, c.size)
	return err
}

// evictCount returns the number of entries one eviction pass removes. When
// atLeastOne is set the result is never zero for a non-empty cache.
func (c *Cache) evictCount(atLeastOne bool) int {
	n := c.size * c.opts.evictionPercent / 100
	if atLeastOne && n == 0 && c.size > 0 {
		n = 1
	}
	return n
}

// evict removes up to count entries from the LRU tail. It must be called
// with c.mu held.
func (c *Cache) evict(ctx context.Context, f Flusher, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	start := time.Now()

	evicted, flushed := 0, 0
	var err error
	for evicted < count && c.lruTail != arena.NullPointer {
		if err = ctx.Err(); err != nil {
			break
		}

		e := c.lruTail
		if RecordState(c.a.GetByte(e, offState)).Dirty() {
			if f == nil {
				err = fmt.Errorf("%w: record %d", ErrNoFlusher, c.a.GetLong(e, offPosition))
				break
			}
			if err = c.flushEntry(ctx, f, e); err != nil {
				break
			}
			flushed++
		}

		c.removeEntry(e)
		evicted++
	}

	if err == nil {
		c.retryEviction = false
	}

	c.evictions += uint64(evicted)
	c.flushes += uint64(flushed)

	dur := time.Since(start)
	c.opts.metrics.RecordEviction(evicted, flushed, dur, err)
	c.log.LogEviction(ctx, count, evicted, flushed, dur, err)
	return evicted, err
}

func (c *Cache) flushEntry(ctx context.Context, f Flusher, e arena.Pointer) error {
	rec := c.record(e)
	err := f.FlushRecord(ctx, rec)
	c.opts.metrics.RecordFlush(len(rec.Content), err)
	if err != nil {
		return &FlushError{Position: rec.Position, State: rec.State, cause: err}
	}
	return nil
}
