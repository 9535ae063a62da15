// Package watch rebuilds a vault when its files change.
package watch

import (
	"slices"
	"sync"
	"time"
)

// MaxPending is the number of pending paths that forces an immediate flush.
const MaxPending = 1000

// Debouncer coalesces bursts of change events into one flush, fired once the
// window passes with no new events.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(paths []string)
	stopped bool
}

// NewDebouncer creates a debouncer that calls onFlush with the sorted set of
// changed paths once window has passed without new events.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change to path.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[path] = struct{}{}

	if len(d.pending) >= MaxPending {
		d.stopTimerLocked()
		paths := d.drainLocked()
		d.mu.Unlock()
		d.emit(paths)
		return
	}

	// A timer that already fired finds nothing pending and returns.
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.FlushNow)
	d.mu.Unlock()
}

// FlushNow flushes pending paths without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	d.stopTimerLocked()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	paths := d.drainLocked()
	d.mu.Unlock()
	d.emit(paths)
}

// Stop flushes pending paths and ignores later events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.stopTimerLocked()
	paths := d.drainLocked()
	d.mu.Unlock()
	d.emit(paths)
}

// PendingCount returns the number of paths waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) drainLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	slices.Sort(paths)
	return paths
}

// emit runs the handler without holding the lock.
func (d *Debouncer) emit(paths []string) {
	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}
