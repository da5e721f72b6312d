// Package fs is the small file system surface the journal needs, with a
// fault-injecting implementation for tests.
//
// Production code passes nil (or [Default]) and gets the os package.
// Tests wrap it in a [FaultyFS] to make writes, fsyncs or truncation fail:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("flush.journal", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
//	j, err := journal.Open(ffs, path, journal.DefaultOptions())
//
// Calls take no context. Local file operations cannot be interrupted at the
// syscall level; remote storage lives behind blobstore.BlobStore instead.
package fs
