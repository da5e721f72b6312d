package recordcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/recordcache/arena"
	"github.com/hupe1980/recordcache/resource"
)

// GroupConfig describes the arena created for every cluster of a Group.
type GroupConfig struct {
	// ArenaCapacity is the per-cluster arena size in bytes.
	ArenaCapacity int
	// MinChunkSize is the smallest arena block. Defaults to 32.
	MinChunkSize int
	// HeapBuffer backs arenas with Go memory instead of anonymous mappings.
	HeapBuffer bool
	// DebugChecks enables arena structural assertions.
	DebugChecks bool
	// Resources, if set, reserves arena memory and bounds the number of
	// clusters evicted or flushed concurrently.
	Resources *resource.Controller
}

type member struct {
	arena *arena.BuddyAllocator
	cache *Cache
}

// Group owns one arena and one Cache per cluster id. A Cache is
// single-owner; the Group shards by cluster so clusters never contend.
type Group struct {
	cfg  GroupConfig
	opts []Option

	mu       sync.RWMutex
	clusters map[int32]*member
	closed   bool
}

// NewGroup creates an empty group. opts apply to every cluster cache;
// WithClusterID is overridden per cluster.
func NewGroup(cfg GroupConfig, opts ...Option) (*Group, error) {
	if cfg.MinChunkSize == 0 {
		cfg.MinChunkSize = 32
	}
	if cfg.ArenaCapacity < cfg.MinChunkSize {
		return nil, fmt.Errorf("%w: arena capacity %d", ErrInvalidConfig, cfg.ArenaCapacity)
	}

	return &Group{
		cfg:      cfg,
		opts:     opts,
		clusters: make(map[int32]*member),
	}, nil
}

// Cluster returns the cache of cluster id, creating it and its arena on
// first use.
func (g *Group) Cluster(id int32) (*Cache, error) {
	g.mu.RLock()
	m, ok := g.clusters[id]
	closed := g.closed
	g.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if ok {
		return m.cache, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	if m, ok := g.clusters[id]; ok {
		return m.cache, nil
	}

	m, err := g.newMember(id)
	if err != nil {
		return nil, err
	}
	g.clusters[id] = m
	return m.cache, nil
}

func (g *Group) newMember(id int32) (*member, error) {
	var aopts []arena.Option
	if g.cfg.HeapBuffer {
		aopts = append(aopts, arena.WithHeapBuffer())
	}
	if g.cfg.DebugChecks {
		aopts = append(aopts, arena.WithDebugChecks(true))
	}
	if g.cfg.Resources != nil {
		aopts = append(aopts, arena.WithReserver(g.cfg.Resources))
	}

	a, err := arena.NewBuddyAllocator(g.cfg.ArenaCapacity, g.cfg.MinChunkSize, aopts...)
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w", id, err)
	}

	opts := append(slices.Clone(g.opts), WithClusterID(id))
	c, err := New(a, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("cluster %d: %w", id, err)
	}

	return &member{arena: a, cache: c}, nil
}

// Lookup returns the cache of cluster id if it exists.
func (g *Group) Lookup(id int32) (*Cache, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.clusters[id]
	if !ok {
		return nil, false
	}
	return m.cache, true
}

// Clusters returns the ids of all created clusters in ascending order.
func (g *Group) Clusters() []int32 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]int32, 0, len(g.clusters))
	for id := range g.clusters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EvictAll runs EvictPercent on every cluster in parallel. It returns the
// first error; clusters already evicted stay evicted.
func (g *Group) EvictAll(ctx context.Context, f Flusher, percent int) error {
	return g.each(ctx, func(ctx context.Context, c *Cache) error {
		_, err := c.EvictPercent(ctx, f, percent)
		return err
	})
}

// FlushAll runs Flush on every cluster in parallel and returns the total
// number of records flushed.
func (g *Group) FlushAll(ctx context.Context, f Flusher) (int, error) {
	var total atomic.Int64
	err := g.each(ctx, func(ctx context.Context, c *Cache) error {
		n, err := c.Flush(ctx, f)
		total.Add(int64(n))
		return err
	})
	return int(total.Load()), err
}

// Stats returns the stats of every cluster in ascending cluster order.
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Stats, 0, len(g.clusters))
	for _, m := range g.clusters {
		out = append(out, m.cache.Stats())
	}
	slices.SortFunc(out, func(a, b Stats) int { return int(a.ClusterID) - int(b.ClusterID) })
	return out
}

// Close drains every cluster, flushing dirty records with f, and releases
// the arenas. Clusters that fail to drain keep their arena and the error is
// returned; Close may be retried.
func (g *Group) Close(ctx context.Context, f Flusher) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for id, m := range g.clusters {
		if err := m.cache.Close(ctx, f); err != nil {
			errs = append(errs, fmt.Errorf("cluster %d: %w", id, err))
			continue
		}
		if err := m.arena.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cluster %d: %w", id, err))
		}
		delete(g.clusters, id)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.closed = true
	return nil
}

// each runs fn on every cluster, at most as many at once as the resource
// controller grants cluster job slots.
func (g *Group) each(ctx context.Context, fn func(context.Context, *Cache) error) error {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return ErrClosed
	}
	caches := make([]*Cache, 0, len(g.clusters))
	for _, m := range g.clusters {
		caches = append(caches, m.cache)
	}
	g.mu.RUnlock()

	rc := g.cfg.Resources
	eg, ctx := errgroup.WithContext(ctx)
	for _, c := range caches {
		eg.Go(func() error {
			return rc.RunClusterJob(ctx, func() error {
				if err := fn(ctx, c); err != nil {
					return fmt.Errorf("cluster %d: %w", c.ClusterID(), err)
				}
				return nil
			})
		})
	}
	return eg.Wait()
}
