package proxy

import (
	"context"
	"sync"

	guestbridge "github.com/wippyai/guest-bridge"
)

// Future is the pending result of an explicit async call without a
// callback. It completes exactly once.
type Future struct {
	f    *Factory
	done chan struct{}
	res  guestbridge.Handle
	err  error
	mode Mode
	once sync.Once
}

func newFuture(f *Factory, m Mode) *Future {
	return &Future{f: f, mode: m, done: make(chan struct{})}
}

// complete sets the outcome exactly once and closes done.
func (fu *Future) complete(res guestbridge.Handle, err error) {
	fu.once.Do(func() {
		fu.res, fu.err = res, err
		close(fu.done)
	})
}

// Done returns a channel closed when the call completes.
func (fu *Future) Done() <-chan struct{} { return fu.done }

// Await blocks until the call completes or ctx ends, then converts the
// result on the calling goroutine. The guest call itself is not
// cancelled when ctx ends.
func (fu *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-fu.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return fu.f.result(fu.res, fu.err, fu.mode)
}
