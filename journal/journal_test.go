package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recordcache/internal/compress"
	"github.com/hupe1980/recordcache/internal/fs"
	"github.com/hupe1980/recordcache/internal/hash"
)

func testEntries() []*Entry {
	return []*Entry{
		{Type: TypeRecord, ClusterID: 12, Position: 1, DataSegmentID: 1, State: 2, Content: []byte("first")},
		{Type: TypeRemove, ClusterID: 12, Position: 2},
		{Type: TypeRecord, ClusterID: 13, Position: 3, DataSegmentID: 4, State: 1, Content: bytes.Repeat([]byte("abc"), 500)},
		{Type: TypeRecord, ClusterID: 13, Position: 4, DataSegmentID: 4, Content: []byte{}},
	}
}

func readAll(t *testing.T, j *Journal) []*Entry {
	t.Helper()
	var out []*Entry
	_, err := j.Replay(func(e *Entry) error {
		out = append(out, e)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestJournal(t *testing.T) {
	for _, tt := range []struct {
		name string
		opts Options
	}{
		{"sync", DefaultOptions()},
		{"async", Options{Durability: DurabilityAsync}},
		{"lz4", Options{Durability: DurabilitySync, Compression: CompressionLZ4}},
		{"zstd", Options{Durability: DurabilityAsync, Compression: CompressionZSTD}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "flush.journal")

			j, err := Open(nil, path, tt.opts)
			require.NoError(t, err)

			entries := testEntries()
			for i, e := range entries {
				lsn, err := j.Append(e)
				require.NoError(t, err)
				assert.Equal(t, uint64(i+1), lsn)
			}
			require.NoError(t, j.Sync())
			require.NoError(t, j.Close())

			j2, err := Open(nil, path, tt.opts)
			require.NoError(t, err)
			defer j2.Close()
			assert.Equal(t, uint64(len(entries)+1), j2.NextLSN())

			got := readAll(t, j2)
			require.Len(t, got, len(entries))
			for i, e := range entries {
				assert.Equal(t, e.LSN, got[i].LSN)
				assert.Equal(t, e.Type, got[i].Type)
				assert.Equal(t, e.ClusterID, got[i].ClusterID)
				assert.Equal(t, e.Position, got[i].Position)
				if e.Type == TypeRecord {
					assert.Equal(t, e.DataSegmentID, got[i].DataSegmentID)
					assert.Equal(t, e.State, got[i].State)
					assert.Equal(t, e.Content, got[i].Content)
				}
			}
		})
	}
}

func TestJournal_CompressedContentIsSmaller(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("compressible "), 1000)

	size := func(c Compression) int64 {
		j, err := Open(nil, filepath.Join(dir, c.String()+".journal"), Options{Compression: c})
		require.NoError(t, err)
		defer j.Close()
		_, err = j.Append(&Entry{Type: TypeRecord, Content: content})
		require.NoError(t, err)
		return j.Size()
	}

	assert.Less(t, size(CompressionLZ4), size(CompressionNone)/4)
}

func TestJournal_OversizedContent(t *testing.T) {
	huge := make([]byte, MaxPayloadSize+1)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			j, err := Open(nil, filepath.Join(t.TempDir(), "big.journal"), Options{Compression: c})
			require.NoError(t, err)
			defer j.Close()

			_, err = j.Append(&Entry{Type: TypeRecord, Position: 1, Content: huge})
			if c == CompressionNone {
				require.ErrorIs(t, err, ErrRecordTooLarge)
			} else {
				require.ErrorIs(t, err, compress.ErrTooLarge)
			}

			// The journal is still usable and wrote nothing.
			assert.Equal(t, int64(headerSize), j.Size())
			lsn, err := j.Append(&Entry{Type: TypeRecord, Position: 2, Content: []byte("ok")})
			require.NoError(t, err)
			assert.Equal(t, uint64(1), lsn)
			assert.Len(t, readAll(t, j), 1)
		})
	}
}

func TestJournal_TornTailIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.journal")

	j, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	for _, e := range testEntries()[:2] {
		_, err := j.Append(e)
		require.NoError(t, err)
	}
	intact := j.Size()
	_, err = j.Append(&Entry{Type: TypeRecord, Position: 9, Content: []byte("torn")})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-2))

	// The raw reader sees the torn entry.
	f, err := os.Open(path)
	require.NoError(t, err)
	r, err := NewReader(f)
	require.NoError(t, err)
	n, err := ReplayFrom(r, func(*Entry) error { return nil })
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 2, n)
	require.NoError(t, f.Close())

	// Open repairs it and continues the sequence.
	j2, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	defer j2.Close()
	assert.Equal(t, intact, j2.Size())
	assert.Equal(t, uint64(3), j2.NextLSN())

	lsn, err := j2.Append(&Entry{Type: TypeRemove, Position: 9})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn)
	assert.Len(t, readAll(t, j2), 3)
}

func TestJournal_CorruptEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.journal")

	j, err := Open(nil, path, Options{Durability: DurabilityAsync})
	require.NoError(t, err)
	_, err = j.Append(&Entry{Type: TypeRecord, Position: 1, Content: []byte("payload")})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, ErrInvalidCRC)
	assert.Equal(t, int64(headerSize), r.Offset())

	require.NoError(t, os.WriteFile(path, data, 0o600))
	j2, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	defer j2.Close()
	assert.Equal(t, int64(headerSize), j2.Size())
	assert.Empty(t, readAll(t, j2))
}

func TestJournal_InvalidHeader(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.journal")
	require.NoError(t, os.WriteFile(bad, []byte("NOTAJOURNAL!"), 0o600))
	_, err := Open(nil, bad, DefaultOptions())
	require.ErrorIs(t, err, ErrInvalidHeader)

	short := filepath.Join(dir, "short.journal")
	require.NoError(t, os.WriteFile(short, []byte("RCJ"), 0o600))
	_, err = Open(nil, short, DefaultOptions())
	require.ErrorIs(t, err, ErrInvalidHeader)

	header := make([]byte, headerSize)
	copy(header, magic)
	binary.LittleEndian.PutUint32(header[8:], 99)
	future := filepath.Join(dir, "future.journal")
	require.NoError(t, os.WriteFile(future, header, 0o600))
	_, err = Open(nil, future, DefaultOptions())
	require.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestJournal_ReplayStopsOnCallbackError(t *testing.T) {
	j, err := Open(nil, filepath.Join(t.TempDir(), "j"), Options{Durability: DurabilityAsync})
	require.NoError(t, err)
	defer j.Close()

	for _, e := range testEntries() {
		_, err := j.Append(e)
		require.NoError(t, err)
	}

	boom := errors.New("boom")
	n, err := j.Replay(func(e *Entry) error {
		if e.LSN == 3 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
}

func TestJournal_GroupCommitConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "group.journal")
	j, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)

	const writers, perWriter = 20, 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_, err := j.Append(&Entry{Type: TypeRecord, ClusterID: int32(w), Position: int64(i), Content: []byte{byte(i)}})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, j.Close())

	j2, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	defer j2.Close()

	got := readAll(t, j2)
	require.Len(t, got, writers*perWriter)
	for i, e := range got {
		assert.Equal(t, uint64(i+1), e.LSN)
		assert.Equal(t, []byte{byte(e.Position)}, e.Content)
	}
}

func TestJournal_Faults(t *testing.T) {
	t.Run("sync", func(t *testing.T) {
		ffs := fs.NewFaultyFS(nil)
		path := filepath.Join(t.TempDir(), "sync.journal")

		j, err := Open(ffs, path, DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, j.Close())

		ffs.AddRule("sync.journal", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
		j, err = Open(ffs, path, DefaultOptions())
		require.NoError(t, err)

		_, err = j.Append(&Entry{Type: TypeRemove, Position: 1})
		require.Error(t, err)

		// The journal stays failed.
		_, err = j.Append(&Entry{Type: TypeRemove, Position: 2})
		require.Error(t, err)
		_ = j.Close()
	})

	t.Run("write", func(t *testing.T) {
		ffs := fs.NewFaultyFS(nil)
		path := filepath.Join(t.TempDir(), "write.journal")

		j, err := Open(ffs, path, Options{Durability: DurabilityAsync})
		require.NoError(t, err)
		ffs.SetLimit(ffs.Written() + 10)

		_, err = j.Append(&Entry{Type: TypeRecord, Content: make([]byte, 100)})
		require.Error(t, err)
		assert.Equal(t, uint64(1), j.NextLSN())
		_ = j.Close()
	})

	t.Run("truncate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "torn.journal")
		j, err := Open(nil, path, DefaultOptions())
		require.NoError(t, err)
		_, err = j.Append(&Entry{Type: TypeRecord, Position: 1, Content: []byte("x")})
		require.NoError(t, err)
		require.NoError(t, j.Close())

		fi, err := os.Stat(path)
		require.NoError(t, err)
		require.NoError(t, os.Truncate(path, fi.Size()-1))

		ffs := fs.NewFaultyFS(nil)
		ffs.AddRule("torn", fs.Fault{FailAfterBytes: -1, FailOnTruncate: true})
		_, err = Open(ffs, path, DefaultOptions())
		require.ErrorIs(t, err, fs.ErrInjected)
	})

	t.Run("closed", func(t *testing.T) {
		j, err := Open(nil, filepath.Join(t.TempDir(), "c.journal"), DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, j.Close())

		_, err = j.Append(&Entry{Type: TypeRemove})
		require.ErrorIs(t, err, os.ErrClosed)
		require.ErrorIs(t, j.Close(), os.ErrClosed)
	})
}

func TestDecode_Errors(t *testing.T) {
	frame := func(typ Type, payload []byte) []byte {
		var h [frameHeaderSize]byte
		h[4] = byte(typ)
		binary.LittleEndian.PutUint32(h[13:], uint32(len(payload)))
		crc := hash.NewCRC32C()
		crc.Write(h[4:])
		crc.Write(payload)
		binary.LittleEndian.PutUint32(h[0:], crc.Sum32())
		return append(h[:], payload...)
	}

	_, _, err := decode(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)

	_, _, err = decode(bytes.NewReader([]byte{1, 2, 3}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	_, _, err = decode(bytes.NewReader(frame(99, nil)))
	require.ErrorIs(t, err, ErrInvalidType)

	_, _, err = decode(bytes.NewReader(frame(TypeRecord, []byte{1, 2})))
	require.ErrorIs(t, err, ErrShortRead)

	_, _, err = decode(bytes.NewReader(frame(TypeRemove, make([]byte, 3))))
	require.ErrorIs(t, err, ErrShortRead)

	var h [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(h[13:], MaxPayloadSize+1)
	_, _, err = decode(bytes.NewReader(h[:]))
	require.ErrorIs(t, err, ErrRecordTooLarge)

	_, err = (&Entry{Type: 7}).encode(nil, CompressionNone)
	require.ErrorIs(t, err, ErrInvalidType)
}
