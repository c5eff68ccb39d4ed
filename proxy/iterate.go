package proxy

import (
	"context"
	stderrors "errors"
	"iter"

	"github.com/wippyai/guest-bridge/errors"
)

// Iterate returns a lazy single-pass sequence over the guest iterator of
// the value. Each step calls __next__; the guest StopIteration ends the
// sequence and any other guest exception is yielded as an error. Values
// that do not declare __iter__ yield nothing.
//
// With GetReferenceOnIterate the items are proxies.
func (p *Proxy) Iterate(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if !p.caps.iterable {
			return
		}
		next, err := p.iterator(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			v, err := next.Call(ctx)
			if err != nil {
				var exc *Exception
				if stderrors.As(err, &exc) && exc.IsStopIteration(ctx) {
					return
				}
				yield(nil, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// iterator calls __iter__ and returns a proxy over the bound __next__.
func (p *Proxy) iterator(ctx context.Context) (*Proxy, error) {
	iterFn, err := p.f.engine.GetAttr(p.h, iterMarker)
	if err != nil {
		return nil, p.f.bridge(err)
	}
	it, err := p.f.engine.Call(ctx, iterFn, nil, nil)
	if err != nil {
		return nil, p.f.bridge(err)
	}
	nextFn, err := p.f.engine.GetAttr(it, "__next__")
	if err != nil {
		return nil, errors.New(errors.PhaseIterate, errors.KindGuestRaised).
			Detail("iterator has no __next__").
			Cause(p.f.bridge(err)).
			Build()
	}
	mode := p.mode
	if mode.GetReferenceOnIterate {
		mode.GetReference = true
	}
	return p.f.newProxy(nextFn, mode, hiddenMode{}), nil
}

// All drains Iterate into a slice.
func (p *Proxy) All(ctx context.Context) ([]any, error) {
	var out []any
	for v, err := range p.Iterate(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
