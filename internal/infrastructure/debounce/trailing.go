package debounce

import (
	"sync"
	"time"
)

// Trailing runs the most recently scheduled function once the delay has
// passed without another Trigger. Every Trigger restarts the delay.
type Trailing struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
	gen     uint64

	// запуски по таймеру, которые еще выполняются
	running int
	idle    *sync.Cond
}

// NewTrailing creates a trailing debouncer
func NewTrailing(delay time.Duration) *Trailing {
	t := &Trailing{delay: delay}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Trigger schedules fn, replacing any function that has not run yet
func (t *Trailing) Trigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = fn
	t.timer = time.AfterFunc(t.delay, func() {
		t.fire(gen)
	})
}

func (t *Trailing) fire(gen uint64) {
	t.mu.Lock()
	// таймер мог сработать одновременно с новым Trigger
	if gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	fn := t.pending
	t.pending = nil
	t.timer = nil
	t.running++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running--
		if t.running == 0 {
			t.idle.Broadcast()
		}
		t.mu.Unlock()
	}()
	fn()
}

// Cancel drops the pending function without running it.
// It reports whether a function was pending.
func (t *Trailing) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.take() != nil
}

// Wait blocks until functions already started by the timer have returned
func (t *Trailing) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.running > 0 {
		t.idle.Wait()
	}
}

// Pending reports whether a function is waiting to run
func (t *Trailing) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

func (t *Trailing) take() func() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	fn := t.pending
	t.pending = nil
	return fn
}
