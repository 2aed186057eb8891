package viewport

import (
	"sync"
	"time"

	"github.com/pietrosul/MyBusApp/internal/clock"
)

// Debouncer runs the last triggered function once no new trigger has
// arrived for the quiet window.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	stopped bool
}

func NewDebouncer(c clock.Clock, window time.Duration) *Debouncer {
	return &Debouncer{clock: c, window: window}
}

// Trigger replaces any pending call with fn and restarts the window.
// It is a no-op after Stop.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopLocked()

	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.gen != gen || d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Stop cancels the pending call and disables later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.stopped = true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
