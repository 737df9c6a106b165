package shutdown

import (
	"log/slog"
	"sync"
	"time"
)

// Timer runs a callback after a delay unless cancelled first. Scheduling again
// restarts the countdown.
type Timer struct {
	fn func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	fired chan struct{}
	once  sync.Once
}

// NewTimer creates an idle timer that will call fn when it expires.
func NewTimer(fn func()) *Timer {
	return &Timer{fn: fn, fired: make(chan struct{})}
}

// Schedule (re)starts the countdown.
func (t *Timer) Schedule(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	slog.Info("Shutdown scheduled", "delay", delay)
	t.timer = time.AfterFunc(delay, func() { t.expire(gen) })
}

// Cancel stops a pending countdown. It reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer == nil {
		return false
	}
	stopped := t.timer.Stop()
	t.timer = nil
	t.gen++
	if stopped {
		slog.Info("Shutdown cancelled")
	}
	return stopped
}

// Done is closed once the callback has run.
func (t *Timer) Done() <-chan struct{} {
	return t.fired
}

func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.once.Do(func() {
		if t.fn != nil {
			t.fn()
		}
		close(t.fired)
	})
}
