package flush

import (
	"context"

	"github.com/hupe1980/recordcache"
	"github.com/hupe1980/recordcache/resource"
)

// RateLimitedFlusher charges each record's content length against the flush
// throughput of a resource.Controller before delegating.
type RateLimitedFlusher struct {
	next recordcache.Flusher
	rc   *resource.Controller
}

// RateLimited wraps next. A nil controller or one without a flush limit
// passes records through unthrottled.
func RateLimited(next recordcache.Flusher, rc *resource.Controller) *RateLimitedFlusher {
	return &RateLimitedFlusher{next: next, rc: rc}
}

// FlushRecord implements recordcache.Flusher.
func (f *RateLimitedFlusher) FlushRecord(ctx context.Context, rec recordcache.Record) error {
	if err := f.rc.ChargeFlush(ctx, len(rec.Content)); err != nil {
		return err
	}
	return f.next.FlushRecord(ctx, rec)
}
