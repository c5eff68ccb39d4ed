package runtime

import (
	"context"
	"sync"
	"time"
)

// drainPoll bounds how long Drain waits between checks of busy when no
// completion is posted.
const drainPoll = 5 * time.Millisecond

// Loop is the host-side completion queue. Guest worker threads post async
// callbacks to it and the host runs them on its own goroutine through
// RunOnce, Run or Drain. It implements proxy.Poster.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued completions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunOnce runs the completions queued so far and returns how many ran.
// Completions posted while they run wait for the next call.
func (l *Loop) RunOnce() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Run processes completions until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunOnce()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Drain processes completions until busy reports false and the queue is
// empty, or ctx ends.
func (l *Loop) Drain(ctx context.Context, busy func() bool) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		l.RunOnce()
		if (busy == nil || !busy()) && l.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		case <-ticker.C:
		}
	}
}
