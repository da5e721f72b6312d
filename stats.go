package recordcache

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a snapshot of a cache's counters.
type Stats struct {
	ClusterID     int32
	Records       int
	DirtyRecords  int
	IndexBuckets  int
	RetryEviction bool

	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64

	ArenaCapacity  int
	ArenaFreeSpace int
}

// HitRatio returns hits/(hits+misses), or 0 before the first Get.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"Cache{cluster: %d, records: %d, dirty: %d, hit ratio: %.2f, evictions: %d, flushes: %d, arena: %s/%s free}",
		s.ClusterID,
		s.Records,
		s.DirtyRecords,
		s.HitRatio(),
		s.Evictions,
		s.Flushes,
		humanize.IBytes(uint64(s.ArenaFreeSpace)),
		humanize.IBytes(uint64(s.ArenaCapacity)),
	)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		ClusterID:      c.opts.clusterID,
		Records:        c.size,
		DirtyRecords:   int(c.dirty.GetCardinality()),
		IndexBuckets:   c.index.Buckets(),
		RetryEviction:  c.retryEviction,
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		Flushes:        c.flushes,
		ArenaCapacity:  c.a.Capacity(),
		ArenaFreeSpace: c.a.FreeSpace(),
	}
}
