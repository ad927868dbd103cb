// Package loop provides the single-threaded event loop that drives the
// send-data and S0 state machines. Every callback, timer expiry and radio
// completion runs to completion on the loop goroutine, so the state those
// components own needs no locking.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/zgw-go/pkg/internal/logger"
)

var (
	ErrLoopStopped = errors.New("event loop is stopped")
)

// Timer is a single-shot timer armed on a Scheduler
type Timer interface {
	// Stop cancels the timer. Returns true if the timer was still pending.
	Stop() bool
}

// Scheduler is the cooperative scheduler seen by the protocol components
type Scheduler interface {
	// Post queues fn to run on the loop after the current event completes
	Post(fn func())

	// AfterFunc arms a single-shot timer that runs fn on the loop
	AfterFunc(d time.Duration, fn func()) Timer

	// Now returns the loop clock
	Now() time.Time
}

// EventLoop is the production Scheduler backed by a goroutine. Post never
// blocks: events that do not fit the queue wait in an overflow list and
// keep their order.
type EventLoop struct {
	events chan func()
	logger logger.Logger

	mu       sync.Mutex
	overflow []func()

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewEventLoop creates an event loop with the given queue depth
func NewEventLoop(depth int, log logger.Logger) *EventLoop {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if depth <= 0 {
		depth = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLoop{
		events: make(chan func(), depth),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the loop goroutine
func (l *EventLoop) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run()
	}()
}

// Stop terminates the loop. Pending events are dropped.
func (l *EventLoop) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.cancel()
	l.wg.Wait()
}

func (l *EventLoop) run() {
	l.logger.Debug("Event loop started")
	defer l.logger.Debug("Event loop stopped")

	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.events:
			fn()
			l.refill()
		}
	}
}

// Post implements Scheduler.Post. Events posted after Stop are dropped.
func (l *EventLoop) Post(fn func()) {
	if l.ctx.Err() != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.overflow) == 0 {
		select {
		case l.events <- fn:
			return
		default:
		}
	}
	if len(l.overflow) == 0 {
		l.logger.Warn("Event queue full, spilling to overflow")
	}
	l.overflow = append(l.overflow, fn)
}

// refill moves overflowed events into the queue as room frees up
func (l *EventLoop) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.overflow) > 0 {
		select {
		case l.events <- l.overflow[0]:
			l.overflow[0] = nil
			l.overflow = l.overflow[1:]
		default:
			return
		}
	}
}

// Backlog returns the number of events waiting to run
func (l *EventLoop) Backlog() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events) + len(l.overflow)
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop goroutine.
func (l *EventLoop) Call(ctx context.Context, fn func()) error {
	if l.ctx.Err() != nil {
		return ErrLoopStopped
	}
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-l.ctx.Done():
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now implements Scheduler.Now
func (l *EventLoop) Now() time.Time {
	return time.Now()
}

// AfterFunc implements Scheduler.AfterFunc
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.stopped.CompareAndSwap(false, true)
}
