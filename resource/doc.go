// Package resource holds the limits shared by the caches of a Group.
//
// A Controller enforces three of them:
//
//   - arena budget: every cluster arena books its capacity when created and
//     gives it back on Close. A cluster that does not fit fails at once with
//     ErrArenaBudgetExceeded instead of waiting for another to close.
//   - cluster jobs: FlushAll and EvictAll visit clusters in parallel, but
//     only ClusterJobs of them at a time.
//   - flush throughput: flush.RateLimited charges record content against a
//     token bucket refilled at FlushBytesPerSec.
//
//	rc := resource.NewController(resource.Config{
//	    ArenaBudget:      1 << 30,
//	    ClusterJobs:      4,
//	    FlushBytesPerSec: 64 << 20,
//	})
//
// A nil *Controller imposes no limits, so callers need no nil checks.
package resource
