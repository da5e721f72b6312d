package recordcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recordcache/resource"
)

func newTestGroup(t *testing.T, rc *resource.Controller, opts ...Option) *Group {
	t.Helper()
	g, err := NewGroup(GroupConfig{
		ArenaCapacity: 1 << 16,
		HeapBuffer:    true,
		DebugChecks:   true,
		Resources:     rc,
	}, opts...)
	require.NoError(t, err)
	return g
}

func TestGroup_Clusters(t *testing.T) {
	rc := resource.NewController(resource.Config{ArenaBudget: 2 << 16})
	g := newTestGroup(t, rc, WithClusterID(99))

	c12, err := g.Cluster(12)
	require.NoError(t, err)
	assert.Equal(t, int32(12), c12.ClusterID(), "cluster id overrides the shared options")

	again, err := g.Cluster(12)
	require.NoError(t, err)
	assert.Same(t, c12, again)

	_, err = g.Cluster(3)
	require.NoError(t, err)
	assert.Equal(t, int64(2<<16), rc.ReservedArenaBytes())

	// A third arena exceeds the memory limit.
	_, err = g.Cluster(4)
	require.ErrorIs(t, err, resource.ErrArenaBudgetExceeded)

	assert.Equal(t, []int32{3, 12}, g.Clusters())

	_, ok := g.Lookup(4)
	assert.False(t, ok)
	got, ok := g.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, int32(3), got.ClusterID())

	require.NoError(t, g.Close(t.Context(), nil))
	assert.Equal(t, int64(0), rc.ReservedArenaBytes())

	_, err = g.Cluster(1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestGroup_FlushAndEvictAll(t *testing.T) {
	rc := resource.NewController(resource.Config{ClusterJobs: 2})
	g := newTestGroup(t, rc)

	for _, id := range []int32{1, 2, 3} {
		c, err := g.Cluster(id)
		require.NoError(t, err)
		for p := range int64(10) {
			putOK(t, c, p, []byte{byte(id)}, StateNew)
		}
	}

	f := &recordingFlusher{}
	n, err := g.FlushAll(t.Context(), f)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Len(t, f.records, 30)
	for _, rec := range f.records {
		assert.Equal(t, []byte{byte(rec.ClusterID)}, rec.Content)
	}

	require.NoError(t, g.EvictAll(t.Context(), nil, 50))
	for _, s := range g.Stats() {
		assert.Equal(t, 5, s.Records)
		assert.Equal(t, 0, s.DirtyRecords)
	}

	stats := g.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, int32(1), stats[0].ClusterID)
	assert.Equal(t, int32(3), stats[2].ClusterID)

	require.NoError(t, g.Close(t.Context(), nil))
}

func TestGroup_ErrorsNameTheCluster(t *testing.T) {
	g := newTestGroup(t, nil)

	c, err := g.Cluster(7)
	require.NoError(t, err)
	putOK(t, c, 1, []byte("a"), StateModified)

	boom := errors.New("boom")
	failing := FlusherFunc(func(context.Context, Record) error { return boom })

	err = g.EvictAll(t.Context(), failing, 100)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "cluster 7")

	// Close keeps the failing cluster so it can be retried.
	err = g.Close(t.Context(), failing)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int32{7}, g.Clusters())

	f := &recordingFlusher{}
	require.NoError(t, g.Close(t.Context(), f))
	assert.Len(t, f.records, 1)
	assert.Empty(t, g.Clusters())
}

func TestNewGroup_InvalidConfig(t *testing.T) {
	_, err := NewGroup(GroupConfig{ArenaCapacity: 8})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
