package progress

import (
	"sync"
	"time"

	"github.com/lendfast/origination-engine/internal/domain"
)

type saveFunc func(*domain.ApplicationSnapshot)

// debouncer coalesces rapid snapshot saves into one trailing-edge write.
// Every Trigger cancels and restarts the timer; Flush fires immediately
// (step changes save without waiting); Stop cancels any pending timer so
// a torn-down machine never writes a discarded snapshot.
type debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	save     saveFunc
	timer    *time.Timer
	pending  *domain.ApplicationSnapshot
	stopped  bool
}

func newDebouncer(interval time.Duration, save saveFunc) *debouncer {
	return &debouncer{
		interval: interval,
		save:     save,
	}
}

// Trigger schedules a save of snap after the debounce interval, replacing
// any snapshot already waiting.
func (d *debouncer) Trigger(snap *domain.ApplicationSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = snap
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	snap := d.pending
	d.pending = nil
	d.timer = nil
	stopped := d.stopped
	d.mu.Unlock()

	if snap != nil && !stopped {
		d.save(snap)
	}
}

// Flush cancels any pending timer and saves snap now, off the caller's
// goroutine so a slow remote write never blocks a step transition.
func (d *debouncer) Flush(snap *domain.ApplicationSnapshot) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.mu.Unlock()

	go d.save(snap)
}

// Stop cancels any pending save permanently.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
