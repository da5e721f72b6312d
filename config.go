package recordcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/hupe1980/recordcache/arena"
	"github.com/hupe1980/recordcache/indexmap"
	"github.com/hupe1980/recordcache/internal/compress"
	"github.com/hupe1980/recordcache/resource"
)

// Config is the file form of a cache setup. Files are JSON with comments
// and trailing commas allowed.
type Config struct {
	ArenaCapacity int  `json:"arena_capacity"`
	MinChunkSize  int  `json:"min_chunk_size"`
	HeapBuffer    bool `json:"heap_buffer,omitempty"`
	DebugChecks   bool `json:"debug_checks,omitempty"`

	ClusterID       int32  `json:"cluster_id"`
	EvictionSize    int    `json:"eviction_size"`
	EvictionPercent int    `json:"eviction_percent"`
	Compression     string `json:"compression,omitempty"`

	IndexInitialCapacity int     `json:"index_initial_capacity,omitempty"`
	IndexLoadFactor      float64 `json:"index_load_factor,omitempty"`

	MemoryLimitBytes     int64 `json:"memory_limit_bytes,omitempty"`
	MaxBackgroundWorkers int64 `json:"max_background_workers,omitempty"`
	IOLimitBytesPerSec   int64 `json:"io_limit_bytes_per_sec,omitempty"`
}

// DefaultConfig returns a 64 MiB arena with 32 byte chunks and no eviction
// size cap.
func DefaultConfig() Config {
	return Config{
		ArenaCapacity:   64 << 20,
		MinChunkSize:    32,
		EvictionSize:    -1,
		EvictionPercent: DefaultEvictionPercent,
	}
}

// LoadConfig reads path over DefaultConfig. A missing file is an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses JSONC data over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for values the arena or the cache would reject.
func (c Config) Validate() error {
	var errs []error

	if c.MinChunkSize < arena.MinChunkSize || c.MinChunkSize&(c.MinChunkSize-1) != 0 {
		errs = append(errs, fmt.Errorf("min_chunk_size %d must be a power of two >= %d", c.MinChunkSize, arena.MinChunkSize))
	}
	if c.ArenaCapacity < c.MinChunkSize {
		errs = append(errs, fmt.Errorf("arena_capacity %d is smaller than min_chunk_size", c.ArenaCapacity))
	}
	if c.EvictionPercent < 0 || c.EvictionPercent > 100 {
		errs = append(errs, fmt.Errorf("eviction_percent %d must be between 0 and 100", c.EvictionPercent))
	}
	if _, err := compress.ParseType(c.Compression); err != nil {
		errs = append(errs, fmt.Errorf("compression: %w", err))
	}
	if c.IndexInitialCapacity < 0 {
		errs = append(errs, fmt.Errorf("index_initial_capacity %d must not be negative", c.IndexInitialCapacity))
	}
	if c.IndexLoadFactor < 0 || c.IndexLoadFactor > 1 {
		errs = append(errs, fmt.Errorf("index_load_factor %v must be in (0, 1]", c.IndexLoadFactor))
	}
	if c.MemoryLimitBytes > 0 && c.MemoryLimitBytes < int64(c.ArenaCapacity) {
		errs = append(errs, fmt.Errorf("memory_limit_bytes %d cannot hold one arena of %d bytes", c.MemoryLimitBytes, c.ArenaCapacity))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// CacheOptions converts the config into cache options. extra are applied
// after the config options.
func (c Config) CacheOptions(extra ...Option) []Option {
	comp, _ := compress.ParseType(c.Compression)

	opts := []Option{
		WithClusterID(c.ClusterID),
		WithEvictionSize(c.EvictionSize),
		WithEvictionPercent(c.EvictionPercent),
		WithCompression(comp),
	}

	var idx []indexmap.Option
	if c.IndexInitialCapacity > 0 {
		idx = append(idx, indexmap.WithInitialCapacity(c.IndexInitialCapacity))
	}
	if c.IndexLoadFactor > 0 {
		idx = append(idx, indexmap.WithLoadFactor(c.IndexLoadFactor))
	}
	if len(idx) > 0 {
		opts = append(opts, WithIndexOptions(idx...))
	}

	return append(opts, extra...)
}

// ResourceController returns a controller for the configured limits.
func (c Config) ResourceController() *resource.Controller {
	return resource.NewController(resource.Config{
		ArenaBudget:      c.MemoryLimitBytes,
		ClusterJobs:      c.MaxBackgroundWorkers,
		FlushBytesPerSec: c.IOLimitBytesPerSec,
	})
}

// NewArena creates the configured arena, reserving its capacity from rc
// when rc is not nil.
func (c Config) NewArena(rc *resource.Controller) (*arena.BuddyAllocator, error) {
	var opts []arena.Option
	if c.HeapBuffer {
		opts = append(opts, arena.WithHeapBuffer())
	}
	if c.DebugChecks {
		opts = append(opts, arena.WithDebugChecks(true))
	}
	if rc != nil {
		opts = append(opts, arena.WithReserver(rc))
	}
	return arena.NewBuddyAllocator(c.ArenaCapacity, c.MinChunkSize, opts...)
}

// GroupConfig returns the per-cluster arena setup of a Group.
func (c Config) GroupConfig(rc *resource.Controller) GroupConfig {
	return GroupConfig{
		ArenaCapacity: c.ArenaCapacity,
		MinChunkSize:  c.MinChunkSize,
		HeapBuffer:    c.HeapBuffer,
		DebugChecks:   c.DebugChecks,
		Resources:     rc,
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return compress.ParseType(s)
}
