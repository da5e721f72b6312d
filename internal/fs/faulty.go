package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInjected is the error returned by a failure a FaultyFS was told to
// produce, unless the matching Fault names its own.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes how operations on matching files fail.
type Fault struct {
	// FailAfterBytes fails a write that would take the bytes written through
	// one handle past this value. Negative disables the check.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnTruncate bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type rule struct {
	pattern string
	fault   Fault
}

// FaultyFS wraps a FileSystem and injects failures. Rules match on a
// substring of the file's base name; the most recently added match wins.
// A global write limit applies to all files on top of the rules.
type FaultyFS struct {
	fs FileSystem

	mu      sync.Mutex
	rules   []rule
	written int64
	limit   int64
}

// NewFaultyFS wraps fsys, or Default if it is nil. Nothing fails until a
// rule or limit is set.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{fs: fsys, limit: -1}
}

// AddRule applies fault to files whose base name contains pattern. It
// affects files opened afterwards and all later truncations.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{pattern: pattern, fault: fault})
}

// SetLimit fails every write that would take the total number of bytes
// written through f past limit. Negative removes the limit.
func (f *FaultyFS) SetLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
}

// Written returns the number of bytes written through f so far.
func (f *FaultyFS) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *FaultyFS) match(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := filepath.Base(name)
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(base, f.rules[i].pattern) {
			return f.rules[i].fault
		}
	}
	return Fault{FailAfterBytes: -1}
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, fault: f.match(name)}, nil
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.fs.MkdirAll(path, perm)
}

func (f *FaultyFS) Truncate(name string, size int64) error {
	if fault := f.match(name); fault.FailOnTruncate {
		return fault.err()
	}
	return f.fs.Truncate(name, size)
}

func (f *FaultyFS) Remove(name string) error {
	return f.fs.Remove(name)
}

// reserve accounts n bytes against the global limit.
func (f *FaultyFS) reserve(n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limit >= 0 && f.written+int64(n) > f.limit {
		return false
	}
	f.written += int64(n)
	return true
}

type faultyFile struct {
	File
	fs      *FaultyFS
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(len(p)) > ff.fault.FailAfterBytes {
		return 0, ff.fault.err()
	}
	if !ff.fs.reserve(len(p)) {
		return 0, ff.fault.err()
	}

	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}
