// Package debounce runs a function only after its input has been quiet for
// a fixed window. A new Trigger before the window elapses replaces the
// pending value and restarts the window; nothing that was superseded ever
// runs.
package debounce

import (
	"sync"
	"time"
)

type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	value   T
	stopped bool
}

func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Trigger schedules fn(v) after the quiet window, replacing any pending call.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.gen++
	d.value = v
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.mu.Unlock()
	d.fn(v)
}

// Cancel drops the pending call, if any.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer[T]) cancelLocked() {
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush runs the pending call immediately on the caller's goroutine.
// It reports whether there was anything to run.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	v := d.value
	d.cancelLocked()
	d.mu.Unlock()
	d.fn(v)
	return true
}

// Pending reports whether a call is waiting for its window to elapse.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels the pending call and ignores every later Trigger.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}
