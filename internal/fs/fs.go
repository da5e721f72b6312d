package fs

import (
	"io"
	"os"
)

// File is an open journal file.
type File interface {
	io.ReadWriteCloser
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem opens, truncates and removes files.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	Truncate(name string, size int64) error
	Remove(name string) error
}

// LocalFS is the FileSystem of the os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (LocalFS) Truncate(name string, size int64) error       { return os.Truncate(name, size) }
func (LocalFS) Remove(name string) error                     { return os.Remove(name) }

// Default is used when a nil FileSystem is passed.
var Default FileSystem = LocalFS{}
