// Package recordcache is an off-heap second-level cache for storage engine
// records.
//
// Record payloads, the hash index and the LRU list all live inside a
// fixed-capacity arena.Arena, so a large cache adds nothing to the Go
// heap the garbage collector has to scan. Each record carries a state:
//
//   - Shared: identical to the durable copy; may be dropped at any time
//   - Modified: changed in memory; must be flushed before it is dropped
//   - New: created in memory and never persisted; must be flushed first
//
// Eviction walks the LRU list from its cold end and hands every dirty record
// to a Flusher before its memory is reclaimed:
//
//	a, err := arena.NewBuddyAllocator(64<<20, 64)
//	if err != nil { ... }
//	defer a.Close()
//
//	c, err := recordcache.New(a, recordcache.WithClusterID(12))
//	if err != nil { ... }
//
//	ok, err := c.Put(1, 42, payload, recordcache.StateNew)
//	if err == nil && !ok {
//	    // arena full: evict and retry
//	    _, err = c.Evict(ctx, flusher)
//	}
//
// PutOrEvict bundles the evict-and-retry step. A Group keeps one arena and
// one cache per cluster under a shared resource.Controller budget.
//
// All Cache methods are safe for concurrent use; they serialize on a single
// mutex, and flushing during eviction happens while that mutex is held.
package recordcache
