package proxy

import (
	"context"
	"iter"
	"slices"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
)

// Proxy is the host view of one guest value. Its surface is a function of
// what the guest value declares: operations the value does not support
// are absent rather than failing.
//
// A Proxy is not safe for concurrent mutation of its mode.
type Proxy struct {
	f      *Factory
	h      guestbridge.Handle
	caps   capabilities
	hidden hiddenMode
	mode   Mode
}

// Handle returns the wrapped guest handle.
func (p *Proxy) Handle() guestbridge.Handle { return p.h }

// Variant returns the capability class computed at wrap time.
func (p *Proxy) Variant() Variant { return p.caps.variant }

// IsCallable reports whether the guest value can be called.
func (p *Proxy) IsCallable() bool { return p.caps.callable }

// IsClass reports whether the guest value is a type.
func (p *Proxy) IsClass() bool { return p.caps.class }

// IsIterable reports whether the guest value declares __iter__.
func (p *Proxy) IsIterable() bool { return p.caps.iterable }

// Type returns a proxy over the guest type of the value.
func (p *Proxy) Type() *Proxy {
	return p.f.Proxy(p.f.engine.TypeOf(p.h))
}

// Mode reports the current mode, including the async settings.
func (p *Proxy) Mode() ModeView {
	return ModeView{
		Mode:          p.mode,
		ExplicitAsync: p.hidden.explicitAsync,
		Callback:      p.hidden.callback,
	}
}

// SetMode changes the mode of p in place and returns p.
func (p *Proxy) SetMode(opts ...ModeOption) *Proxy {
	p.mode = p.mode.With(opts...)
	return p
}

// NewMode returns a new proxy over the same guest value with the mode of
// p plus opts. The async settings of p carry over. p is unaffected.
func (p *Proxy) NewMode(opts ...ModeOption) *Proxy {
	return p.f.newProxy(p.f.engine.Clone(p.h), p.mode.With(opts...), p.hidden)
}

// Async returns a proxy whose calls take the explicit async path when a
// host function is passed as an argument. With a nil callback such calls
// return a *Future; otherwise cb receives the result exactly once.
func (p *Proxy) Async(cb Callback) *Proxy {
	return p.f.newProxy(p.f.engine.Clone(p.h), p.mode, hiddenMode{explicitAsync: true, callback: cb})
}

// Keys lists the capability keys followed by the guest attributes.
func (p *Proxy) Keys() []string {
	keys := slices.Clone(p.caps.keys)
	for _, a := range p.attributes() {
		if !slices.Contains(keys, a) {
			keys = append(keys, a)
		}
	}
	return keys
}

// Has reports whether name is a capability key or a guest attribute.
func (p *Proxy) Has(name string) bool {
	return p.caps.has(name) || slices.Contains(p.attributes(), name)
}

// Get resolves name. Capability keys come first and yield Go values:
//
//	$isCallable, $isClass, $isIterable  func() bool
//	$getType                            func() *Proxy
//	$newMode, $mode                     func(...ModeOption) *Proxy
//	$getMode                            func() ModeView
//	$async                              func(Callback) *Proxy
//	$inspect                            func() string
//	$apply                              func(context.Context, []any, map[string]any) (any, error)
//	$iter                               func(context.Context) iter.Seq2[any, error]
//	$str, $eq, $add, ...                *Proxy over the guest method
//
// Guest attributes follow. With AttributeCheck an undeclared attribute
// yields guestbridge.Undefined; without it the guest lookup runs and its
// failure is returned.
func (p *Proxy) Get(name string) (any, error) {
	if v, ok := p.capability(name); ok {
		return v, nil
	}
	if p.mode.AttributeCheck && !slices.Contains(p.attributes(), name) {
		Logger().Debug("attribute not declared", zap.String("attr", name))
		return guestbridge.Undefined, nil
	}
	h, err := p.f.engine.GetAttr(p.h, name)
	if err != nil {
		return nil, p.f.bridge(err)
	}
	return p.f.Value(h, p.mode)
}

// Attr is Get for a guest attribute that is expected to be a guest
// object. It returns nil when the attribute is absent or not a proxy.
func (p *Proxy) Attr(name string) (*Proxy, error) {
	v, err := p.Get(name)
	if err != nil {
		return nil, err
	}
	px, _ := v.(*Proxy)
	return px, nil
}

func (p *Proxy) capability(name string) (any, bool) {
	if !p.caps.has(name) {
		return nil, false
	}
	switch name {
	case KeyIsCallable:
		return p.IsCallable, true
	case KeyIsClass:
		return p.IsClass, true
	case KeyIsIterable:
		return p.IsIterable, true
	case KeyGetType:
		return p.Type, true
	case KeyNewMode:
		return p.NewMode, true
	case KeyGetMode:
		return p.Mode, true
	case KeyMode:
		return p.SetMode, true
	case KeyAsync:
		return p.Async, true
	case KeyInspect:
		return p.Inspect, true
	case KeyApply:
		return p.Apply, true
	case KeyIter:
		return func(ctx context.Context) iter.Seq2[any, error] { return p.Iterate(ctx) }, true
	}
	d, ok := p.Dunder(name)
	return d, ok
}

// Dunder returns a proxy over the guest method behind an operator
// shortcut such as "$add".
func (p *Proxy) Dunder(key string) (*Proxy, bool) {
	attr, ok := p.caps.dunders[key]
	if !ok {
		return nil, false
	}
	h, err := p.f.engine.GetAttr(p.h, attr)
	if err != nil {
		return nil, false
	}
	return p.f.Proxy(h), true
}

// Set marshals v and stores it as guest attribute name. Writes are
// forwarded regardless of AttributeCheck.
func (p *Proxy) Set(name string, v any) error {
	s := p.f.enc.NewSession()
	h, err := s.Encode(v)
	if err != nil {
		p.f.release(s.Lent())
		return err
	}
	if err := p.f.engine.SetAttr(p.h, name, h); err != nil {
		return p.f.bridge(err)
	}
	p.caps = p.f.capabilities(p)
	return nil
}

// Materialize converts the guest value to a host value, ignoring
// GetReference.
func (p *Proxy) Materialize() (any, error) {
	return p.f.Value(p.h, Mode{})
}

func (p *Proxy) attributes() []string {
	attrs, err := p.f.engine.Attributes(p.h)
	if err != nil {
		Logger().Debug("attribute list failed", zap.Error(err))
		return nil
	}
	return attrs
}

// Equal reports whether p and o wrap the same guest value.
func (p *Proxy) Equal(o *Proxy) bool {
	return o != nil && p.h.HandleID() == o.h.HandleID()
}

// As returns v as a proxy. It is a convenience for values returned by Get
// and Call.
func As(v any) (*Proxy, error) {
	p, ok := v.(*Proxy)
	if !ok {
		return nil, errors.Usage(errors.PhaseAttribute, "value of type %T is not a guest proxy", v)
	}
	return p, nil
}
