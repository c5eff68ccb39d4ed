package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
)

// CallAsync runs h on a guest worker thread. At most the configured number
// of workers run at once; the rest wait for a slot. done is called exactly
// once from the worker, before the call stops counting as pending.
func (e *Engine) CallAsync(ctx context.Context, h guestbridge.Handle, args []guestbridge.Handle, kwargs []guestbridge.Keyword, done func(guestbridge.Handle, error)) {
	fn := e.object(h)
	posArgs, kw := e.arguments(args, kwargs)

	// closeMu orders wg.Add before Close starts waiting.
	e.closeMu.Lock()
	if e.closed.Load() {
		e.closeMu.Unlock()
		done(nil, errors.Finalized(errors.PhaseEngine))
		return
	}
	e.pending.Add(1)
	e.wg.Add(1)
	e.closeMu.Unlock()

	go func() {
		defer e.wg.Done()
		defer e.pending.Add(-1)

		if err := e.sem.Acquire(ctx, 1); err != nil {
			done(nil, err)
			return
		}
		defer e.sem.Release(1)

		thread := uuid.NewString()
		wctx := context.WithValue(ctx, threadKey{}, thread)
		Logger().Debug("async call",
			zap.String("target", Repr(fn)),
			zap.String("thread", thread))

		res, err := e.CallObject(wctx, fn, posArgs, kw)
		if err != nil {
			done(nil, err)
			return
		}
		done(res, nil)
	}()
}
