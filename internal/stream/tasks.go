package stream

import (
	"sync"
	"time"
)

// scheduledTask is a cancellable delayed callback. Cancel is safe to
// call twice and after the timer fired. Callbacks still re-check their
// component's running flag; Cancel racing the timer firing is possible
// and the flag is the authoritative guard.
type scheduledTask struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

func scheduleTask(d time.Duration, fn func()) *scheduledTask {
	t := &scheduledTask{}
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

// Cancel stops the task. Nil-safe so callers can cancel a handle they
// may never have armed.
func (t *scheduledTask) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.timer.Stop()
}
