package loop

import (
	"time"

	"avaneesh/zgw-go/pkg/internal/queue"
)

// Manual is a deterministic Scheduler driven by a virtual clock. Nothing runs
// until Drain or Advance is called.
type Manual struct {
	now     time.Time
	pending []func()
	timers  *queue.TimerQueue
}

// NewManual creates a manual scheduler starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		timers: queue.NewTimerQueue(),
	}
}

// Post implements Scheduler.Post
func (m *Manual) Post(fn func()) {
	m.pending = append(m.pending, fn)
}

// Now implements Scheduler.Now
func (m *Manual) Now() time.Time {
	return m.now
}

// AfterFunc implements Scheduler.AfterFunc
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	t := &manualTimer{m: m, fn: fn}
	t.item = m.timers.Push(t, m.now.Add(d))
	return t
}

// Drain runs posted events until none remain
func (m *Manual) Drain() {
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and draining posted events after each one
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		m.Drain()
		it := m.timers.PopDue(target)
		if it == nil {
			break
		}
		if it.Deadline.After(m.now) {
			m.now = it.Deadline
		}
		t := it.Value.(*manualTimer)
		t.done = true
		t.fn()
	}
	m.now = target
	m.Drain()
}

// PendingTimers returns the number of armed timers
func (m *Manual) PendingTimers() int {
	return m.timers.Len()
}

type manualTimer struct {
	m    *Manual
	item *queue.Item
	fn   func()
	done bool
}

func (t *manualTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	t.m.timers.Remove(t.item)
	return true
}
