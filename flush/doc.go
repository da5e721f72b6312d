// Package flush provides recordcache.Flusher implementations that persist
// evicted or checkpointed records.
//
//   - Journal appends each record to a journal.Journal.
//   - Blob writes one object per record to a blobstore.BlobStore.
//   - DynamoDB writes one item per record to a DynamoDB table.
//   - RateLimited throttles another flusher through a resource.Controller.
//   - Multi fans a record out to several flushers in order.
//
// Flushers compose:
//
//	j, _ := journal.Open(nil, "cache.journal", journal.DefaultOptions())
//	f := flush.Multi(flush.Journal(j), flush.RateLimited(flush.Blob(store), rc))
//	cache, _ := recordcache.New(a, recordcache.WithFlusher(f))
package flush
