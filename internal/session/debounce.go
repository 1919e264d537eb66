package session

import (
	"sync"
	"time"
)

// Debouncer is a cancelable deferred task: scheduling arms (or re-arms) a
// single timer for a fixed quiescence window; each new schedule resets the
// window so only the state after the last edit in a burst is acted on.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given quiescence window.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule arms the timer to run fn after the quiescence window, replacing
// any previously scheduled task. fn runs on the timer goroutine.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel stops any pending task without running it. Returns true when a task
// was actually pending. Used both by forced flushes (which supersede the
// timer with an immediate call) and by unmount (which must not flush).
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// Pending reports whether a task is currently scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
