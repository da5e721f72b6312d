package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/recordcache/internal/compress"
	"github.com/hupe1980/recordcache/internal/fs"
)

// Durability controls when Append returns relative to fsync.
type Durability int

const (
	// DurabilityAsync relies on the OS page cache. Fast but risky.
	DurabilityAsync Durability = iota
	// DurabilitySync makes Append wait for fsync. Concurrent appends share
	// one fsync (group commit).
	DurabilitySync
)

// Compression selects how record content is stored in the journal.
type Compression = compress.Type

// Content compression algorithms.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

const (
	magic      = "RCJOURNL" // 8 bytes
	version    = 1          // 4 bytes
	headerSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("journal: incompatible version")
	ErrInvalidHeader       = errors.New("journal: invalid header")
)

// Options configures a Journal.
type Options struct {
	Durability  Durability
	Compression Compression
}

// DefaultOptions returns synchronous durability without compression.
func DefaultOptions() Options {
	return Options{Durability: DurabilitySync}
}

// Journal is an append-only log of flushed records.
type Journal struct {
	mu   sync.Mutex
	fs   fs.FileSystem
	file fs.File
	cw   *countingWriter
	path string
	opts Options

	nextLSN uint64
	buf     []byte

	// Group commit state
	syncedOffset int64
	syncCond     *sync.Cond
	doneCond     *sync.Cond
	closed       bool
	lastErr      error
	wg           sync.WaitGroup
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() error {
	return cw.w.Flush()
}

// Open opens or creates the journal at path. An existing journal is scanned
// to continue its LSN sequence; a torn or corrupt tail left by a crash is
// truncated away.
func Open(fsys fs.FileSystem, path string, opts Options) (*Journal, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	offset, nextLSN, err := recoverTail(fsys, path)
	if err != nil {
		return nil, err
	}

	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if offset == 0 {
		header := make([]byte, headerSize)
		copy(header[0:8], magic)
		binary.LittleEndian.PutUint32(header[8:12], uint32(version))
		if _, err := f.Write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return nil, err
		}
		offset = headerSize
	}

	j := &Journal{
		fs:           fsys,
		file:         f,
		cw:           &countingWriter{w: bufio.NewWriter(f), n: offset},
		path:         path,
		opts:         opts,
		nextLSN:      nextLSN,
		syncedOffset: offset,
	}
	j.syncCond = sync.NewCond(&j.mu)
	j.doneCond = sync.NewCond(&j.mu)

	if opts.Durability == DurabilitySync {
		j.wg.Add(1)
		go j.runSyncer()
	}

	return j, nil
}

// recoverTail validates the header of an existing journal and returns the
// end of its last intact entry and the LSN to continue with. A missing or
// empty file returns offset 0.
func recoverTail(fsys fs.FileSystem, path string) (int64, uint64, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if errors.Is(err, os.ErrNotExist) {
		return 0, 1, nil
	}
	if err != nil {
		return 0, 0, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, 0, err
	}
	size := stat.Size()
	if size == 0 {
		_ = f.Close()
		return 0, 1, nil
	}

	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return 0, 0, err
	}

	next := uint64(1)
	for {
		e, err := r.Next()
		if err != nil {
			break
		}
		next = e.LSN + 1
	}
	valid := r.Offset()
	if err := f.Close(); err != nil {
		return 0, 0, err
	}

	if valid < size {
		if err := fsys.Truncate(path, valid); err != nil {
			return 0, 0, fmt.Errorf("journal: truncate torn tail: %w", err)
		}
	}
	return valid, next, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Size returns the current size of the journal in bytes.
func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cw.n
}

// NextLSN returns the LSN the next appended entry receives.
func (j *Journal) NextLSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextLSN
}

func (j *Journal) runSyncer() {
	defer j.wg.Done()
	j.mu.Lock()
	defer j.mu.Unlock()

	for {
		for j.cw.n <= j.syncedOffset && !j.closed {
			j.syncCond.Wait()
		}

		if j.closed && j.cw.n <= j.syncedOffset {
			return
		}

		target := j.cw.n

		j.mu.Unlock()
		err := j.file.Sync()
		j.mu.Lock()

		if err != nil {
			j.lastErr = fmt.Errorf("journal sync failed: %w", err)
			j.doneCond.Broadcast()
			return
		}

		if target > j.syncedOffset {
			j.syncedOffset = target
		}
		j.doneCond.Broadcast()
	}
}

// Append assigns the next LSN to e, writes it and, with DurabilitySync,
// waits until it is on stable storage. It returns the assigned LSN.
func (j *Journal) Append(e *Entry) (uint64, error) {
	lsn, offset, err := j.AppendAsync(e)
	if err != nil {
		return 0, err
	}
	if j.opts.Durability == DurabilitySync {
		return lsn, j.WaitFor(offset)
	}
	return lsn, nil
}

// AppendAsync writes e to the file without waiting for fsync. It returns the
// assigned LSN and the file offset of the end of the entry.
func (j *Journal) AppendAsync(e *Entry) (uint64, int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, 0, os.ErrClosed
	}
	if j.lastErr != nil {
		return 0, 0, j.lastErr
	}

	e.LSN = j.nextLSN
	frame, err := e.encode(j.buf[:0], j.opts.Compression)
	if err != nil {
		return 0, 0, err
	}
	j.buf = frame

	if _, err := j.cw.Write(frame); err != nil {
		j.lastErr = fmt.Errorf("journal write failed: %w", err)
		return 0, 0, j.lastErr
	}
	if err := j.cw.Flush(); err != nil {
		j.lastErr = fmt.Errorf("journal write failed: %w", err)
		return 0, 0, j.lastErr
	}
	j.nextLSN++

	end := j.cw.n
	if j.opts.Durability == DurabilitySync {
		j.syncCond.Signal()
	}
	return e.LSN, end, nil
}

// WaitFor waits until the journal is synced up to offset.
func (j *Journal) WaitFor(offset int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.syncedOffset < offset && !j.closed && j.lastErr == nil {
		j.doneCond.Wait()
	}
	if j.lastErr != nil {
		return j.lastErr
	}
	if j.closed && j.syncedOffset < offset {
		return os.ErrClosed
	}
	return nil
}

// Sync commits every appended entry to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return os.ErrClosed
	}
	if j.lastErr != nil {
		return j.lastErr
	}
	if err := j.cw.Flush(); err != nil {
		return err
	}

	if j.opts.Durability == DurabilityAsync {
		return j.file.Sync()
	}

	target := j.cw.n
	j.syncCond.Signal()
	for j.syncedOffset < target && !j.closed && j.lastErr == nil {
		j.doneCond.Wait()
	}
	return j.lastErr
}

// Close flushes buffered entries, stops the syncer and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()

	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}

	if err := j.cw.Flush(); err != nil {
		j.mu.Unlock()
		_ = j.file.Close()
		return err
	}

	j.closed = true
	j.syncCond.Signal()
	j.mu.Unlock()

	j.wg.Wait()

	return j.file.Close()
}

// Reader opens a separate handle on the journal file for replay. The caller
// must close it.
func (j *Journal) Reader() (*Reader, error) {
	f, err := j.fs.OpenFile(j.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Reader iterates over journal entries.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	offset int64
}

// NewReader validates the journal header read from r and returns a Reader
// positioned at the first entry.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if string(header[0:8]) != magic {
		return nil, fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[0:8])
	}
	if ver := binary.LittleEndian.Uint32(header[8:12]); ver != version {
		return nil, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, version)
	}

	return &Reader{r: br, offset: headerSize}, nil
}

// Next reads the next entry. It returns io.EOF at the clean end of the
// journal, io.ErrUnexpectedEOF for a torn entry and ErrInvalidCRC for a
// corrupt one.
func (r *Reader) Next() (*Entry, error) {
	e, n, err := decode(r.r)
	if err == nil {
		r.offset += n
	}
	return e, err
}

// Offset returns the end of the last entry read successfully.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close closes the underlying file if the Reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Replay calls fn for every entry in LSN order. It stops at the first
// error returned by fn or by the Reader and returns the number of entries
// applied. io.EOF is not an error.
func (j *Journal) Replay(fn func(*Entry) error) (int, error) {
	r, err := j.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return ReplayFrom(r, fn)
}

// ReplayFrom is Replay over an arbitrary Reader.
func ReplayFrom(r *Reader, fn func(*Entry) error) (int, error) {
	n := 0
	for {
		e, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("journal entry at offset %d: %w", r.Offset(), err)
		}
		if err := fn(e); err != nil {
			return n, fmt.Errorf("replay entry %d: %w", e.LSN, err)
		}
		n++
	}
}
