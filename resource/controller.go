package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrArenaBudgetExceeded is returned when a cluster arena does not fit into
// the remaining arena budget.
var ErrArenaBudgetExceeded = errors.New("arena budget exceeded")

// Config bounds what the caches of one Group may consume together.
type Config struct {
	// ArenaBudget caps the summed capacity of all cluster arenas.
	// 0 tracks reservations without a cap.
	ArenaBudget int64

	// ClusterJobs is how many clusters may flush or evict at the same time.
	// Values below 1 mean 1.
	ClusterJobs int64

	// FlushBytesPerSec throttles record content handed to flush targets.
	// 0 disables throttling.
	FlushBytesPerSec int64
}

// Controller enforces a Config. A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	budget   *semaphore.Weighted
	reserved atomic.Int64

	jobs *semaphore.Weighted

	flushBytes *rate.Limiter
}

// NewController returns a controller for cfg.
func NewController(cfg Config) *Controller {
	cfg.ClusterJobs = max(cfg.ClusterJobs, 1)

	c := &Controller{
		cfg:  cfg,
		jobs: semaphore.NewWeighted(cfg.ClusterJobs),
	}
	if cfg.ArenaBudget > 0 {
		c.budget = semaphore.NewWeighted(cfg.ArenaBudget)
	}
	if cfg.FlushBytesPerSec > 0 {
		// One second of throughput may be spent at once.
		c.flushBytes = rate.NewLimiter(rate.Limit(cfg.FlushBytesPerSec), int(cfg.FlushBytesPerSec))
	}
	return c
}

// ReserveArena books the capacity of a new arena. It never waits: a
// cluster that does not fit fails with ErrArenaBudgetExceeded.
func (c *Controller) ReserveArena(capacity int64) error {
	if c == nil || capacity <= 0 {
		return nil
	}
	if c.budget != nil && !c.budget.TryAcquire(capacity) {
		return ErrArenaBudgetExceeded
	}
	c.reserved.Add(capacity)
	return nil
}

// ReleaseArena returns the capacity of a closed arena to the budget.
func (c *Controller) ReleaseArena(capacity int64) {
	if c == nil || capacity <= 0 {
		return
	}
	if c.budget != nil {
		c.budget.Release(capacity)
	}
	c.reserved.Add(-capacity)
}

// ReservedArenaBytes is the capacity of all arenas currently open.
func (c *Controller) ReservedArenaBytes() int64 {
	if c == nil {
		return 0
	}
	return c.reserved.Load()
}

// ArenaBudget is the configured cap, 0 if uncapped.
func (c *Controller) ArenaBudget() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.ArenaBudget
}

// RunClusterJob runs job once a cluster job slot is free. It returns
// ctx.Err() without running job when ctx ends first.
func (c *Controller) RunClusterJob(ctx context.Context, job func() error) error {
	if c == nil {
		return job()
	}
	if err := c.jobs.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.jobs.Release(1)
	return job()
}

// ChargeFlush waits until n bytes of record content may go to a flush
// target. Records larger than one second of throughput are charged in
// pieces, so they are slowed down rather than rejected.
func (c *Controller) ChargeFlush(ctx context.Context, n int) error {
	if c == nil || c.flushBytes == nil || n <= 0 {
		return nil
	}
	burst := c.flushBytes.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.flushBytes.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
