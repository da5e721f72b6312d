package minio

import (
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recordcache/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-recordcache"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "clusters/1/7", data))

	got, err := store.Get(ctx, "clusters/1/7")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "clusters/1/")
	require.NoError(t, err)
	assert.Contains(t, names, "clusters/1/7")

	require.NoError(t, store.Delete(ctx, "clusters/1/7"))
	require.NoError(t, store.Delete(ctx, "clusters/1/7"))

	_, err = store.Get(ctx, "clusters/1/7")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestNewStore_NormalizesPrefix(t *testing.T) {
	assert.Equal(t, "records/", NewStore(nil, "b", "records").prefix)
	assert.Equal(t, "records/", NewStore(nil, "b", "records/").prefix)
	assert.Equal(t, "", NewStore(nil, "b", "").prefix)
	assert.Equal(t, "records/x", NewStore(nil, "b", "records").key("x"))
}
