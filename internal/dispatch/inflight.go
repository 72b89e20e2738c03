package dispatchengine

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/dispatch/internal/logger"
)

// inflightTracker holds one atomic counter per endpoint ID, CAS-incremented
// up to that endpoint's concurrency limit and decremented on completion.
// A periodic self-heal pass clamps a counter that somehow went negative
// back to zero and caps one that somehow overshot its limit, logging a
// warning either way -- this should never happen on a correct release
// path, but the counter must never be allowed to wedge an endpoint shut.
type inflightTracker struct {
	counters *xsync.Map[string, *atomic.Int64]
	log      *logger.StyledLogger
}

func newInflightTracker(log *logger.StyledLogger) *inflightTracker {
	return &inflightTracker{
		counters: xsync.NewMap[string, *atomic.Int64](),
		log:      log,
	}
}

func (t *inflightTracker) counterFor(endpointID string) *atomic.Int64 {
	c, _ := t.counters.LoadOrCompute(endpointID, func() (*atomic.Int64, bool) {
		return new(atomic.Int64), false
	})
	return c
}

// tryAcquire CAS-increments the endpoint's counter if it is currently below
// limit, returning false (no-op) if at capacity.
func (t *inflightTracker) tryAcquire(endpointID string, limit int64) bool {
	c := t.counterFor(endpointID)
	for {
		cur := c.Load()
		if cur >= limit {
			return false
		}
		if c.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// release decrements the endpoint's counter. Safe to call unconditionally
// from a defer on every Dispatch exit path that successfully acquired.
func (t *inflightTracker) release(endpointID string) {
	t.counterFor(endpointID).Add(-1)
}

func (t *inflightTracker) snapshot(endpointID string) int64 {
	return t.counterFor(endpointID).Load()
}

// selfHeal clamps a negative counter to 0 and caps an overshoot to
// 2×limit, since either state is only reachable through a bug in the
// acquire/release pairing rather than legitimate load.
func (t *inflightTracker) selfHeal(limitFor func(endpointID string) int64) {
	t.counters.Range(func(endpointID string, c *atomic.Int64) bool {
		limit := limitFor(endpointID)
		cur := c.Load()
		switch {
		case cur < 0:
			c.Store(0)
			t.log.Warn("in-flight counter went negative, clamped", "endpoint", endpointID, "was", cur)
		case limit > 0 && cur > 2*limit:
			c.Store(2 * limit)
			t.log.Warn("in-flight counter overshot capacity, capped", "endpoint", endpointID, "was", cur, "limit", limit)
		}
		return true
	})
}
