package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recordcache"
)

func newTestREPL(t *testing.T, journalPath string) (*REPL, *bytes.Buffer) {
	t.Helper()

	cfg := recordcache.DefaultConfig()
	cfg.ArenaCapacity = 1 << 16
	cfg.HeapBuffer = true
	cfg.ClusterID = 3
	cfg.EvictionPercent = 100

	e, err := setup(context.Background(), cfg, options{journalPath: journalPath})
	require.NoError(t, err)

	var out bytes.Buffer
	r := &REPL{env: e, out: &out, cluster: cfg.ClusterID}
	return r, &out
}

func exec(t *testing.T, r *REPL, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, r.Execute(context.Background(), line), line)
	return out.String()
}

func TestParseFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// from file
		"arena_capacity": 1048576,
		"eviction_percent": 50,
		"compression": "zstd",
	}`), 0o600))

	cfg, opts, err := parseFlags([]string{
		"--config", path,
		"--eviction-percent", "30",
		"--heap",
		"-j", "cache.journal",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 1<<20, cfg.ArenaCapacity, "file value kept")
	assert.Equal(t, 30, cfg.EvictionPercent, "flag overrides file")
	assert.Equal(t, "zstd", cfg.Compression)
	assert.True(t, cfg.HeapBuffer)
	assert.Equal(t, -1, cfg.EvictionSize, "default kept")
	assert.Equal(t, "cache.journal", opts.journalPath)

	_, _, err = parseFlags([]string{"--compression", "brotli"}, io.Discard)
	require.ErrorIs(t, err, recordcache.ErrInvalidConfig)

	_, _, err = parseFlags([]string{"--no-such-flag"}, io.Discard)
	require.Error(t, err)
}

func TestREPL_Commands(t *testing.T) {
	journalPath := filepath.Join(t.TempDir(), "cache.journal")
	r, out := newTestREPL(t, journalPath)

	assert.Equal(t, "OK\n", exec(t, r, out, "put 1 hello"))
	assert.Equal(t, "OK\n", exec(t, r, out, "put 2 world shared 4"))
	assert.Contains(t, exec(t, r, out, "get 1"), `"hello" [NEW`)
	assert.Contains(t, exec(t, r, out, "get 9"), "(not found)")

	keys := exec(t, r, out, "keys")
	assert.True(t, strings.HasPrefix(keys, "1\tNEW\n2\tSHARED\n"), keys)

	assert.Equal(t, "flushed 1 records\n", exec(t, r, out, "flush"))
	assert.Contains(t, exec(t, r, out, "get 1"), "[SHARED")

	assert.Equal(t, "OK\n", exec(t, r, out, "put 3 dirty modified"))
	assert.Equal(t, "evicted: true, retry needed: true, records: 1\n", exec(t, r, out, "evict-shared"))
	assert.Equal(t, "evicted 1 records, 0 left\n", exec(t, r, out, "evict 100"))

	assert.Empty(t, exec(t, r, out, "cluster 5"))
	assert.Contains(t, exec(t, r, out, "bulk 20 16"), "stored 20/20 records")
	assert.Equal(t, "OK\n", exec(t, r, out, "verify"))
	assert.Equal(t, "OK\n", exec(t, r, out, "del 0"))
	assert.Equal(t, "OK\n", exec(t, r, out, "put 100 other"))

	stats := exec(t, r, out, "stats")
	assert.Contains(t, stats, "cluster: 3")
	assert.Contains(t, stats, "cluster: 5")
	assert.Contains(t, stats, "journal: "+journalPath)

	require.ErrorIs(t, r.Execute(context.Background(), "quit"), errQuit)
	require.NoError(t, r.env.Close(context.Background()))

	// A new session restores everything that was flushed.
	r2, out2 := newTestREPL(t, journalPath)
	defer func() { require.NoError(t, r2.env.Close(context.Background())) }()

	assert.Equal(t, "restored 22 records\n", exec(t, r2, out2, "replay"))
	assert.Contains(t, exec(t, r2, out2, "get 3"), `"dirty" [SHARED`)
	assert.Contains(t, exec(t, r2, out2, "get 1"), `"hello" [SHARED`)
	assert.Empty(t, exec(t, r2, out2, "cluster 5"))
	assert.Contains(t, exec(t, r2, out2, "get 100"), `"other" [SHARED`)
	assert.Contains(t, exec(t, r2, out2, "get 0"), "(not found)")
}

func TestREPL_Errors(t *testing.T) {
	r, _ := newTestREPL(t, "")
	defer func() { require.NoError(t, r.env.Close(context.Background())) }()
	ctx := context.Background()

	for _, line := range []string{
		"bogus",
		"put",
		"put x y",
		"put 1 y weird",
		"get",
		"cluster abc",
		"bulk 0",
		"evict x",
		"replay",
	} {
		assert.Error(t, r.Execute(ctx, line), line)
	}

	require.NoError(t, r.Execute(ctx, "put 1 a new"))
	require.NoError(t, r.Execute(ctx, "put 1 b modified"))
	require.ErrorIs(t, r.Execute(ctx, "put 1 c shared"), recordcache.ErrIllegalStateTransition)

	err := r.Execute(ctx, "evict 100")
	require.ErrorIs(t, err, recordcache.ErrNoFlusher)
}

func TestCompleter(t *testing.T) {
	assert.Equal(t, []string{"evict", "evict-shared", "exit"}, completer("e"))
	assert.Empty(t, completer("zzz"))
}
