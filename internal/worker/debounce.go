package worker

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of work per key. Scheduling a key that already
// has a pending run cancels the pending run and restarts the window, so only
// the last scheduled function within the window ever fires. Runs for different
// keys are independent.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule queues fn to run after the debounce window. Returns true when a
// previously pending run for the same key was replaced.
func (d *Debouncer) Schedule(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := false
	if t, ok := d.timers[key]; ok {
		t.Stop()
		replaced = true
	}

	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	return replaced
}

// Cancel drops any pending run for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// Stop cancels every pending run. Scheduled functions that already fired are
// unaffected.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
