package flush

import (
	"context"

	"github.com/hupe1980/recordcache"
	"github.com/hupe1980/recordcache/journal"
)

// Appender is the part of *journal.Journal the journal flusher needs.
type Appender interface {
	Append(e *journal.Entry) (uint64, error)
}

// JournalFlusher appends flushed records to a journal.
type JournalFlusher struct {
	j Appender
}

// Journal returns a flusher writing to j. With journal.DurabilitySync the
// record is on stable storage when FlushRecord returns.
func Journal(j Appender) *JournalFlusher {
	return &JournalFlusher{j: j}
}

// FlushRecord implements recordcache.Flusher.
func (f *JournalFlusher) FlushRecord(ctx context.Context, rec recordcache.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := f.j.Append(EntryFromRecord(rec))
	return err
}

// EntryFromRecord converts a flushed record to a journal entry.
func EntryFromRecord(rec recordcache.Record) *journal.Entry {
	return &journal.Entry{
		Type:          journal.TypeRecord,
		ClusterID:     rec.ClusterID,
		Position:      rec.Position,
		DataSegmentID: rec.DataSegmentID,
		State:         uint8(rec.State),
		Content:       rec.Content,
	}
}

// RecordFromEntry converts a journal record entry back to a Record.
func RecordFromEntry(e *journal.Entry) recordcache.Record {
	return recordcache.Record{
		ClusterID:     e.ClusterID,
		Position:      e.Position,
		DataSegmentID: e.DataSegmentID,
		Content:       e.Content,
		State:         recordcache.RecordState(e.State),
	}
}

// Restore replays the journal into g. The last image of every record is
// loaded as SHARED since the journal holds its durable copy; remove entries
// drop the record. Records the cache refuses for lack of space are skipped.
// It returns the number of record images put.
func Restore(ctx context.Context, j *journal.Journal, g *recordcache.Group) (int, error) {
	restored := 0
	_, err := j.Replay(func(e *journal.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := g.Cluster(e.ClusterID)
		if err != nil {
			return err
		}
		if e.Type == journal.TypeRemove {
			c.Remove(e.Position)
			return nil
		}
		// A later image replaces the cached one regardless of state.
		c.Remove(e.Position)
		ok, err := c.Put(e.DataSegmentID, e.Position, e.Content, recordcache.StateShared)
		if err != nil {
			return err
		}
		if ok {
			restored++
		}
		return nil
	})
	return restored, err
}
