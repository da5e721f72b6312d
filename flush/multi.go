package flush

import (
	"context"
	"fmt"

	"github.com/hupe1980/recordcache"
)

type multiFlusher []recordcache.Flusher

// Multi returns a flusher that hands each record to every flusher in order
// and stops at the first failure. Nil flushers are skipped.
func Multi(flushers ...recordcache.Flusher) recordcache.Flusher {
	m := make(multiFlusher, 0, len(flushers))
	for _, f := range flushers {
		if f != nil {
			m = append(m, f)
		}
	}
	return m
}

// FlushRecord implements recordcache.Flusher.
func (m multiFlusher) FlushRecord(ctx context.Context, rec recordcache.Record) error {
	for i, f := range m {
		if err := f.FlushRecord(ctx, rec); err != nil {
			return fmt.Errorf("flusher %d: %w", i, err)
		}
	}
	return nil
}
