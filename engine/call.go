package engine

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/tag"
)

// IsCallable reports whether h can be called.
func (e *Engine) IsCallable(h guestbridge.Handle) bool {
	o := e.object(h)
	switch o.tag {
	case tag.Function, tag.Method, tag.Type, tag.HostCallable:
		return true
	}
	_, ok := e.method(o, "__call__")
	return ok
}

// Call invokes h on the calling goroutine.
func (e *Engine) Call(ctx context.Context, h guestbridge.Handle, args []guestbridge.Handle, kwargs []guestbridge.Keyword) (guestbridge.Handle, error) {
	fn := e.object(h)
	posArgs, kw := e.arguments(args, kwargs)

	Logger().Debug("call",
		zap.String("target", Repr(fn)),
		zap.Int("args", len(posArgs)),
		zap.String("thread", e.ThreadID(ctx)))

	res, err := e.CallObject(ctx, fn, posArgs, kw)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) arguments(args []guestbridge.Handle, kwargs []guestbridge.Keyword) ([]*Object, map[string]*Object) {
	pos := make([]*Object, len(args))
	for i, a := range args {
		pos[i] = e.object(a)
	}
	var kw map[string]*Object
	if len(kwargs) > 0 {
		kw = make(map[string]*Object, len(kwargs))
		for _, k := range kwargs {
			kw[k.Name] = e.object(k.Value)
		}
	}
	return pos, kw
}

// CallObject calls fn with guest arguments. The result is never nil.
func (e *Engine) CallObject(ctx context.Context, fn *Object, args []*Object, kwargs map[string]*Object) (*Object, error) {
	var (
		res *Object
		err error
	)
	switch fn.tag {
	case tag.Function:
		res, err = fn.payload.(*function).fn(ctx, args, kwargs)
	case tag.Method:
		m := fn.payload.(*method)
		res, err = e.CallObject(ctx, m.fn, append([]*Object{m.self}, args...), kwargs)
	case tag.Type:
		res, err = e.construct(ctx, fn, args, kwargs)
	case tag.HostCallable:
		res, err = e.callHost(ctx, fn, args, kwargs)
	default:
		call, ok := e.method(fn, "__call__")
		if !ok {
			return nil, e.Raise("TypeError", "'%s' object is not callable", fn.TypeName())
		}
		res, err = e.CallObject(ctx, call, append([]*Object{fn}, args...), kwargs)
	}
	if err != nil {
		return nil, e.asRaised(err)
	}
	if res == nil {
		return e.none, nil
	}
	return res, nil
}

func (e *Engine) callHost(ctx context.Context, fn *Object, args []*Object, kwargs map[string]*Object) (*Object, error) {
	inv := e.hostInvoker()
	if inv == nil {
		return nil, e.Raise("RuntimeError", "no host invoker installed")
	}
	ref := fn.payload.(*hostRef)

	hargs := make([]guestbridge.Handle, len(args))
	for i, a := range args {
		hargs[i] = a
	}
	var hkw []guestbridge.Keyword
	for _, name := range sortedKeys(kwargs) {
		hkw = append(hkw, guestbridge.Keyword{Name: name, Value: kwargs[name]})
	}

	res, err := inv.InvokeHost(ctx, ref.id, hargs, hkw)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return e.none, nil
	}
	return e.object(res), nil
}

// construct creates an instance of cls. The first class in the MRO with a
// constructor builds the instance; __init__ then runs on it.
func (e *Engine) construct(ctx context.Context, cls *Object, args []*Object, kwargs map[string]*Object) (*Object, error) {
	info := cls.classInfo()
	var inst *Object
	for _, c := range info.mro {
		if ci := c.classInfo(); ci.construct != nil {
			var err error
			inst, err = ci.construct(ctx, cls, args, kwargs)
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if inst == nil {
		inst = e.newObject(tag.Object, cls, nil)
	}
	if inst.class != cls {
		return inst, nil
	}
	if init, ok := e.method(inst, "__init__"); ok {
		if _, err := e.CallObject(ctx, init, append([]*Object{inst}, args...), kwargs); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Raise creates an instance of the builtin exception class name and
// returns it as an error.
func (e *Engine) Raise(name, format string, args ...any) error {
	cls := e.types[name]
	if cls == nil {
		cls = e.types["RuntimeError"]
	}
	return e.RaiseClass(cls, fmt.Sprintf(format, args...))
}

// RaiseClass raises an instance of cls with message.
func (e *Engine) RaiseClass(cls *Object, message string) error {
	exc := e.NewException(cls, message)
	return &guestbridge.Raised{Exception: exc, Message: message}
}

// NewException creates an exception instance without raising it.
func (e *Engine) NewException(cls *Object, message string) *Object {
	exc := e.newObject(tag.Exception, cls, &exception{message: message})
	exc.store("args", e.Tuple(e.Str(message)))
	return exc
}

// asRaised turns any error into a raised guest exception.
func (e *Engine) asRaised(err error) error {
	var r *guestbridge.Raised
	if stderrors.As(err, &r) {
		return r
	}
	var be *errors.Error
	if stderrors.As(err, &be) && be.Kind == errors.KindUsage {
		return e.RaiseClass(e.types["TypeError"], err.Error())
	}
	return e.RaiseClass(e.types["RuntimeError"], err.Error())
}

// IsInstance reports whether o is an instance of cls or a subclass.
func (e *Engine) IsInstance(o, cls *Object) bool {
	if o.class == nil {
		return false
	}
	for _, c := range o.class.classInfo().mro {
		if c == cls {
			return true
		}
	}
	return false
}

func arity(name string, args []*Object, n int) error {
	if len(args) != n {
		return errors.Usage(errors.PhaseEngine, "%s() takes %d arguments (%d given)", name, n-1, len(args)-1)
	}
	return nil
}
