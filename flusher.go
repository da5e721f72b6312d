package recordcache

import "context"

// Record is a cached record handed to a Flusher.
type Record struct {
	ClusterID     int32
	Position      int64
	DataSegmentID int32
	Content       []byte
	State         RecordState
}

// Flusher persists dirty records before the cache reclaims them.
//
// FlushRecord must not return before the record is durable; the cache frees
// the record's memory as soon as it returns nil. On error the record stays
// cached and eviction stops. Flushers used with a Group may be called from
// several goroutines at once.
type Flusher interface {
	FlushRecord(ctx context.Context, rec Record) error
}

// FlusherFunc adapts a function to the Flusher interface.
type FlusherFunc func(ctx context.Context, rec Record) error

// FlushRecord implements Flusher.
func (f FlusherFunc) FlushRecord(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
