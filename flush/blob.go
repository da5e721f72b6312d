package flush

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/hupe1980/recordcache"
	"github.com/hupe1980/recordcache/blobstore"
)

// BlobFlusher stores every flushed record as its own blob.
type BlobFlusher struct {
	store blobstore.BlobStore
}

// Blob returns a flusher writing records to store under BlobKey.
func Blob(store blobstore.BlobStore) *BlobFlusher {
	return &BlobFlusher{store: store}
}

// BlobKey returns the blob name of a record: clusters/<cluster>/<position>.
func BlobKey(clusterID int32, position int64) string {
	return "clusters/" + strconv.FormatInt(int64(clusterID), 10) + "/" + strconv.FormatInt(position, 10)
}

// FlushRecord implements recordcache.Flusher.
func (f *BlobFlusher) FlushRecord(ctx context.Context, rec recordcache.Record) error {
	return f.store.Put(ctx, BlobKey(rec.ClusterID, rec.Position), EncodeRecord(rec))
}

// Load reads a record previously written by FlushRecord. A missing record
// returns an error satisfying errors.Is(err, blobstore.ErrNotFound).
func (f *BlobFlusher) Load(ctx context.Context, clusterID int32, position int64) (recordcache.Record, error) {
	key := BlobKey(clusterID, position)
	data, err := f.store.Get(ctx, key)
	if err != nil {
		return recordcache.Record{}, err
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return recordcache.Record{}, fmt.Errorf("%s: %w", key, err)
	}
	return rec, nil
}

// Positions lists the stored record positions of a cluster in ascending
// order.
func (f *BlobFlusher) Positions(ctx context.Context, clusterID int32) ([]int64, error) {
	prefix := "clusters/" + strconv.FormatInt(int64(clusterID), 10) + "/"
	names, err := f.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	positions := make([]int64, 0, len(names))
	for _, name := range names {
		p, err := strconv.ParseInt(name[len(prefix):], 10, 64)
		if err != nil {
			continue
		}
		positions = append(positions, p)
	}
	slices.Sort(positions)
	return positions, nil
}
