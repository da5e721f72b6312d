package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "clusters/1/7")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "clusters/1/7", []byte("seven")))
			require.NoError(t, store.Put(ctx, "clusters/1/8", []byte("eight")))
			require.NoError(t, store.Put(ctx, "clusters/2/7", []byte("other")))

			data, err := store.Get(ctx, "clusters/1/7")
			require.NoError(t, err)
			assert.Equal(t, "seven", string(data))

			// Overwrite
			require.NoError(t, store.Put(ctx, "clusters/1/7", []byte("SEVEN")))
			data, err = store.Get(ctx, "clusters/1/7")
			require.NoError(t, err)
			assert.Equal(t, "SEVEN", string(data))

			names, err := store.List(ctx, "clusters/1/")
			require.NoError(t, err)
			assert.Equal(t, []string{"clusters/1/7", "clusters/1/8"}, names)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			require.NoError(t, store.Delete(ctx, "clusters/1/7"))
			require.NoError(t, store.Delete(ctx, "clusters/1/7"), "deleting twice is fine")

			_, err = store.Get(ctx, "clusters/1/7")
			require.ErrorIs(t, err, ErrNotFound)

			names, err = store.List(ctx, "clusters/1/")
			require.NoError(t, err)
			assert.Equal(t, []string{"clusters/1/8"}, names)
		})
	}
}

func TestBlobStore_CanceledContext(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			require.ErrorIs(t, store.Put(ctx, "x", []byte("x")), context.Canceled)
			_, err := store.Get(ctx, "x")
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", data))
	data[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, store.Len())
}

func TestLocalStore_Files(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "clusters/3/42", []byte("payload")))

	raw, err := os.ReadFile(filepath.Join(root, "clusters", "3", "42"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(raw))

	for _, bad := range []string{"../escape", "/abs", "", "."} {
		require.Error(t, store.Put(ctx, bad, nil), bad)
	}
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
