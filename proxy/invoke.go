package proxy

import (
	"context"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/resource"
)

// callRecord is the result of marshalling the arguments of one call.
type callRecord struct {
	args                 []guestbridge.Handle
	kwargs               []guestbridge.Keyword
	lent                 []resource.Handle
	containsHostCallable bool
}

// marshalArgs encodes positional and keyword arguments in one session, so
// values shared between arguments stay shared in the guest.
func (f *Factory) marshalArgs(args []any, kwargs map[string]any) (*callRecord, error) {
	s := f.enc.NewSession()
	rec := &callRecord{args: make([]guestbridge.Handle, len(args))}
	for i, a := range args {
		h, err := s.Encode(a)
		if err != nil {
			f.release(s.Lent())
			return nil, err
		}
		rec.args[i] = h
	}
	for _, name := range slices.Sorted(maps.Keys(kwargs)) {
		h, err := s.Encode(kwargs[name])
		if err != nil {
			f.release(s.Lent())
			return nil, err
		}
		rec.kwargs = append(rec.kwargs, guestbridge.Keyword{Name: name, Value: h})
	}
	rec.lent = s.Lent()
	rec.containsHostCallable = s.ContainsHostCallable()
	return rec, nil
}

// Call invokes the guest value with positional arguments.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	return p.CallKw(ctx, args, nil)
}

// Apply is CallKw under the name of the $apply capability.
func (p *Proxy) Apply(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return p.CallKw(ctx, args, kwargs)
}

// Construct instantiates a guest class. Values that are not classes fail
// with a usage error instead of being called.
func (p *Proxy) Construct(ctx context.Context, args ...any) (any, error) {
	if !p.caps.class {
		return nil, errors.Usage(errors.PhaseInvoke, "%s is not a class", p.String())
	}
	return p.CallKw(ctx, args, nil)
}

// CallKw invokes the guest value with positional and keyword arguments.
//
// Calling a value that is neither callable nor a class is a no-op that
// returns guestbridge.Undefined. Passing a host function as an argument
// requires AsyncOverride or a proxy obtained from Async; otherwise the
// call fails with a usage error before any guest code runs. Through Async
// the call runs on a guest thread and returns a *Future, or
// guestbridge.Undefined when a callback receives the result.
func (p *Proxy) CallKw(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	if !p.caps.callable && !p.caps.class {
		return guestbridge.Undefined, nil
	}

	rec, err := p.f.marshalArgs(args, kwargs)
	if err != nil {
		return nil, err
	}

	if !rec.containsHostCallable || p.mode.AsyncOverride {
		return p.callSync(ctx, rec)
	}
	if !p.hidden.explicitAsync {
		p.f.release(rec.lent)
		return nil, errors.Usage(errors.PhaseInvoke,
			"call passes a host function as an argument; invoke it through Async to run it as a callback")
	}
	return p.callAsync(ctx, rec), nil
}

func (p *Proxy) callSync(ctx context.Context, rec *callRecord) (any, error) {
	Logger().Debug("dispatch",
		zap.String("mode", "sync"),
		zap.Int("args", len(rec.args)),
		zap.String("thread", p.f.engine.ThreadID(ctx)))

	res, err := p.f.engine.Call(ctx, p.h, rec.args, rec.kwargs)
	if err != nil {
		return nil, p.f.bridge(err)
	}
	return p.f.Value(res, p.mode)
}

func (p *Proxy) callAsync(ctx context.Context, rec *callRecord) any {
	Logger().Debug("dispatch",
		zap.String("mode", "async"),
		zap.Int("args", len(rec.args)),
		zap.Bool("callback", p.hidden.callback != nil),
		zap.String("thread", p.f.engine.ThreadID(ctx)))

	f := p.f
	mode := p.mode
	if cb := p.hidden.callback; cb != nil {
		var once sync.Once
		f.engine.CallAsync(ctx, p.h, rec.args, rec.kwargs, func(res guestbridge.Handle, err error) {
			once.Do(func() {
				f.poster.Post(func() {
					cb(f.result(res, err, mode))
				})
			})
		})
		return guestbridge.Undefined
	}

	fut := newFuture(f, mode)
	f.engine.CallAsync(ctx, p.h, rec.args, rec.kwargs, fut.complete)
	return fut
}

// result converts the raw outcome of a guest call.
func (f *Factory) result(res guestbridge.Handle, err error, m Mode) (any, error) {
	if err != nil {
		return nil, f.bridge(err)
	}
	return f.Value(res, m)
}
