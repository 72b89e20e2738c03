package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
)

// transitionTracker reduces logging noise by only logging breaker state
// changes and periodic repeated-error summaries, adapted from the
// teacher's StatusTransitionTracker (internal/adapter/health/tracker.go).
type transitionTracker struct {
	entries sync.Map // map[string]*trackerEntry
}

type trackerEntry struct {
	lastState   int32
	lastLogTime int64
	errorCount  int64
}

func newTransitionTracker() *transitionTracker {
	return &transitionTracker{}
}

// shouldLog reports whether this observation is worth a log line, and the
// current repeated-error count.
func (t *transitionTracker) shouldLog(endpointID string, state domain.BreakerState, isError bool) (bool, int) {
	value, exists := t.entries.Load(endpointID)
	if !exists {
		entry := &trackerEntry{lastState: stateToInt(state), lastLogTime: time.Now().UnixNano()}
		value, _ = t.entries.LoadOrStore(endpointID, entry)
	}

	entry := value.(*trackerEntry)
	oldState := intToState(atomic.LoadInt32(&entry.lastState))

	if oldState != state {
		atomic.StoreInt32(&entry.lastState, stateToInt(state))
		atomic.StoreInt64(&entry.errorCount, 0)
		return true, 0
	}

	if isError {
		count := atomic.AddInt64(&entry.errorCount, 1)
		lastLog := time.Unix(0, atomic.LoadInt64(&entry.lastLogTime))
		if count%10 == 0 || time.Since(lastLog) > 5*time.Minute {
			atomic.StoreInt64(&entry.lastLogTime, time.Now().UnixNano())
			return true, int(count)
		}
	}

	return false, int(atomic.LoadInt64(&entry.errorCount))
}

func (t *transitionTracker) forget(endpointID string) {
	t.entries.Delete(endpointID)
}

func stateToInt(s domain.BreakerState) int32 {
	switch s {
	case domain.BreakerClosed:
		return 0
	case domain.BreakerHalfOpen:
		return 1
	case domain.BreakerOpen:
		return 2
	default:
		return 0
	}
}

func intToState(i int32) domain.BreakerState {
	switch i {
	case 1:
		return domain.BreakerHalfOpen
	case 2:
		return domain.BreakerOpen
	default:
		return domain.BreakerClosed
	}
}
