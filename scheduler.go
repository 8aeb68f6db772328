package livesync

import (
	"sync"
	"time"
)

// ScheduledTask is a handle to a pending timer-driven callback. Cancel is
// idempotent; after it returns the callback will never start a new socket
// (a late-firing timer still runs the function body, which re-checks the
// manager's generation and backs out).
type ScheduledTask struct {
	timer     *time.Timer
	once      sync.Once
	cancelled bool
	mu        sync.Mutex
}

// schedule runs fn after d on its own goroutine.
func schedule(d time.Duration, fn func()) *ScheduledTask {
	t := &ScheduledTask{}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		cancelled := t.cancelled
		t.mu.Unlock()
		if cancelled {
			return
		}
		fn()
	})
	return t
}

// Cancel stops the pending callback. Safe to call more than once and after
// the timer has fired.
func (t *ScheduledTask) Cancel() {
	t.once.Do(func() {
		t.mu.Lock()
		t.cancelled = true
		t.mu.Unlock()
		t.timer.Stop()
	})
}
