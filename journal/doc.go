// Package journal implements an append-only log of records handed to a
// cache flusher.
//
// # File Format
//
// A journal starts with a 12 byte header: the magic "RCJOURNL" followed by
// a little-endian uint32 version. Entries follow back to back:
//
//	[CRC32C: 4][Type: 1][LSN: 8][Length: 4][Payload: Length]
//
// The checksum covers everything after itself. Record payloads are
//
//	[Cluster: 4][Position: 8][Segment: 4][State: 1][Codec: 1][ContentLen: 4][Content]
//
// where Content is stored with the codec named in the entry, so journals
// written with different Options.Compression settings stay readable.
//
// # Durability
//
// DurabilitySync makes Append block until the entry is fsync'd. A single
// background goroutine performs the fsyncs, so concurrent appenders share
// them. DurabilityAsync returns as soon as the entry reached the OS.
//
// # Recovery
//
// Open scans an existing journal and truncates a torn or corrupt tail, then
// continues the LSN sequence. Replay applies entries in order.
package journal
