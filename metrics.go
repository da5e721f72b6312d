package recordcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Callbacks run while the cache mutex is held and must not call back into
// the cache.
type MetricsCollector interface {
	// RecordPut is called after each Put. stored is false when the arena or
	// the eviction size refused the record.
	RecordPut(duration time.Duration, stored bool, err error)

	// RecordGet is called after each Get.
	RecordGet(hit bool)

	// RecordRemove is called after each Remove.
	RecordRemove(found bool)

	// RecordEviction is called after each eviction pass.
	RecordEviction(evicted, flushed int, duration time.Duration, err error)

	// RecordFlush is called after each record handed to a flusher.
	RecordFlush(bytes int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, bool, error)          {}
func (NoopMetricsCollector) RecordGet(bool)                                {}
func (NoopMetricsCollector) RecordRemove(bool)                             {}
func (NoopMetricsCollector) RecordEviction(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(int, error)                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	PutCount        atomic.Int64
	PutRejected     atomic.Int64
	PutErrors       atomic.Int64
	PutTotalNanos   atomic.Int64
	GetHits         atomic.Int64
	GetMisses       atomic.Int64
	RemoveCount     atomic.Int64
	EvictionPasses  atomic.Int64
	EvictionErrors  atomic.Int64
	EvictedRecords  atomic.Int64
	EvictTotalNanos atomic.Int64
	FlushedRecords  atomic.Int64
	FlushedBytes    atomic.Int64
	FlushErrors     atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, stored bool, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.PutErrors.Add(1)
	case !stored:
		b.PutRejected.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit bool) {
	if hit {
		b.GetHits.Add(1)
	} else {
		b.GetMisses.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(found bool) {
	if found {
		b.RemoveCount.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(evicted, flushed int, duration time.Duration, err error) {
	b.EvictionPasses.Add(1)
	b.EvictedRecords.Add(int64(evicted))
	b.EvictTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.EvictionErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(bytes int, err error) {
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushedRecords.Add(1)
	b.FlushedBytes.Add(int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:       b.PutCount.Load(),
		PutRejected:    b.PutRejected.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutAvgNanos:    avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		GetHits:        b.GetHits.Load(),
		GetMisses:      b.GetMisses.Load(),
		RemoveCount:    b.RemoveCount.Load(),
		EvictionPasses: b.EvictionPasses.Load(),
		EvictionErrors: b.EvictionErrors.Load(),
		EvictedRecords: b.EvictedRecords.Load(),
		EvictAvgNanos:  avg(b.EvictTotalNanos.Load(), b.EvictionPasses.Load()),
		FlushedRecords: b.FlushedRecords.Load(),
		FlushedBytes:   b.FlushedBytes.Load(),
		FlushErrors:    b.FlushErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// HitRatio returns hits/(hits+misses), or 0 before the first Get.
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.GetHits + s.GetMisses
	if total == 0 {
		return 0
	}
	return float64(s.GetHits) / float64(total)
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount       int64
	PutRejected    int64
	PutErrors      int64
	PutAvgNanos    int64
	GetHits        int64
	GetMisses      int64
	RemoveCount    int64
	EvictionPasses int64
	EvictionErrors int64
	EvictedRecords int64
	EvictAvgNanos  int64
	FlushedRecords int64
	FlushedBytes   int64
	FlushErrors    int64
}
